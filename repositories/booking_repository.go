package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusChange is a conditional status write: it only applies while the
// booking's current status equals From.
type StatusChange struct {
	BookingID          uint
	From               models.BookingStatus
	To                 models.BookingStatus
	AttendanceMarkedAt *time.Time
	Notes              *string
}

// BookingRepository reads bookings and applies compare-and-swap status writes.
type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID returns one booking.
func (r *BookingRepository) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: GetByID: %v", ErrQuery, err)
	}
	return &b, nil
}

// FindAutoConfirmCandidates returns pending bookings created at or before cutoff.
func (r *BookingRepository) FindAutoConfirmCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND auto_confirmed = ? AND created_at <= ?", models.BookingPending, false, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindAutoConfirmCandidates: %v", ErrQuery, err)
	}
	return out, nil
}

// FindAutoCompleteCandidates returns confirmed bookings whose end time is before cutoff.
func (r *BookingRepository) FindAutoCompleteCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_time < ?", models.BookingConfirmed, cutoff).
		Order("end_time ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindAutoCompleteCandidates: %v", ErrQuery, err)
	}
	return out, nil
}

// TransitionStatus applies change only if the row still has status change.From.
// It reports whether the row was updated; false means another actor moved it first.
func (r *BookingRepository) TransitionStatus(ctx context.Context, change StatusChange) (bool, error) {
	updates := map[string]interface{}{"status": change.To}
	if change.AttendanceMarkedAt != nil {
		updates["attendance_marked_at"] = *change.AttendanceMarkedAt
	}
	if change.Notes != nil {
		updates["notes"] = *change.Notes
	}

	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", change.BookingID, change.From).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%w: TransitionStatus: %v", ErrQuery, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AutoConfirm moves a pending booking to confirmed with auto_confirmed set and
// records the notification outbox event in the same transaction.
func (r *BookingRepository) AutoConfirm(ctx context.Context, bookingID uint, event *models.NotificationEvent) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ? AND auto_confirmed = ?", bookingID, models.BookingPending, false).
			Updates(map[string]interface{}{
				"status":         models.BookingConfirmed,
				"auto_confirmed": true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		applied = true
		if event == nil {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error
	})
	if err != nil {
		return false, fmt.Errorf("%w: AutoConfirm: %v", ErrQuery, err)
	}
	return applied, nil
}

// FindCompletedBetween returns completed bookings whose start time falls in [start, end].
func (r *BookingRepository) FindCompletedBetween(ctx context.Context, start, end time.Time) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time BETWEEN ? AND ?", models.BookingCompleted, start, end).
		Order("start_time ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindCompletedBetween: %v", ErrQuery, err)
	}
	return out, nil
}

// FindByPackageIDs returns every booking referencing one of the packages.
func (r *BookingRepository) FindByPackageIDs(ctx context.Context, packageIDs []uint) ([]models.Booking, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	var out []models.Booking
	if err := r.db.WithContext(ctx).Where("package_id IN ?", packageIDs).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: FindByPackageIDs: %v", ErrQuery, err)
	}
	return out, nil
}

// FindByCustomerIDs returns every booking of the customers, oldest session first.
func (r *BookingRepository) FindByCustomerIDs(ctx context.Context, customerIDs []uint) ([]models.Booking, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("customer_id IN ?", customerIDs).
		Order("start_time ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindByCustomerIDs: %v", ErrQuery, err)
	}
	return out, nil
}

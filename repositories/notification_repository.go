package repositories

import (
	"context"
	"fmt"
	"time"

	"studio_engine/models"

	"gorm.io/gorm"
)

// NotificationRepository manages the notification outbox and in-app notifications.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// FindUnclaimed returns outbox events nobody has claimed yet, oldest first.
func (r *NotificationRepository) FindUnclaimed(ctx context.Context, limit int) ([]models.NotificationEvent, error) {
	var out []models.NotificationEvent
	err := r.db.WithContext(ctx).
		Where("claimed_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindUnclaimed: %v", ErrQuery, err)
	}
	return out, nil
}

// Claim marks the event as taken by this dispatcher. Only one caller wins.
func (r *NotificationRepository) Claim(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("id = ? AND claimed_at IS NULL", id).
		Update("claimed_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("%w: Claim: %v", ErrQuery, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkDelivered records the outcome of publishing a claimed event.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uint, at time.Time, deliveryErr string) error {
	updates := map[string]interface{}{"error": deliveryErr}
	if deliveryErr == "" {
		updates["delivered_at"] = at
	}
	if err := r.db.WithContext(ctx).Model(&models.NotificationEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: MarkDelivered: %v", ErrQuery, err)
	}
	return nil
}

// CreateNotifications inserts in-app notification rows.
func (r *NotificationRepository) CreateNotifications(ctx context.Context, notifs []models.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&notifs).Error; err != nil {
		return fmt.Errorf("%w: CreateNotifications: %v", ErrQuery, err)
	}
	return nil
}

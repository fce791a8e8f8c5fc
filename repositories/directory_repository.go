package repositories

import (
	"context"
	"fmt"
	"time"

	"studio_engine/models"

	"gorm.io/gorm"
)

// DirectoryRepository reads the collaborator-owned records the engine consumes:
// teachers, customers, the commission rate table, bonuses and expenses.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ListTeachers returns every teacher, active or not, by ascending ID.
func (r *DirectoryRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	var out []models.Teacher
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: ListTeachers: %v", ErrQuery, err)
	}
	return out, nil
}

func (r *DirectoryRepository) ListCommissionRates(ctx context.Context) ([]models.CommissionRate, error) {
	var out []models.CommissionRate
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: ListCommissionRates: %v", ErrQuery, err)
	}
	return out, nil
}

func (r *DirectoryRepository) BonusesFor(ctx context.Context, year, month int) ([]models.Bonus, error) {
	var out []models.Bonus
	if err := r.db.WithContext(ctx).Where("year = ? AND month = ?", year, month).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: BonusesFor: %v", ErrQuery, err)
	}
	return out, nil
}

func (r *DirectoryRepository) ExpensesFor(ctx context.Context, year, month int) ([]models.Expense, error) {
	var out []models.Expense
	if err := r.db.WithContext(ctx).Where("year = ? AND month = ?", year, month).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: ExpensesFor: %v", ErrQuery, err)
	}
	return out, nil
}

// ListCustomersAfter pages through customers by ascending ID.
func (r *DirectoryRepository) ListCustomersAfter(ctx context.Context, afterID uint, limit int) ([]models.Customer, error) {
	var out []models.Customer
	err := r.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: ListCustomersAfter: %v", ErrQuery, err)
	}
	return out, nil
}

// UpdateCustomerCreatedAt is the auditor's account-creation repair.
func (r *DirectoryRepository) UpdateCustomerCreatedAt(ctx context.Context, id uint, createdAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		UpdateColumn("created_at", createdAt)
	if res.Error != nil {
		return fmt.Errorf("%w: UpdateCustomerCreatedAt: %v", ErrQuery, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

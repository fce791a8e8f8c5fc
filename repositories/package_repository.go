package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_engine/models"

	"gorm.io/gorm"
)

// PackageRepository gives read access to packages plus the auditor's validity repair.
type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) GetByID(ctx context.Context, id uint) (*models.Package, error) {
	var p models.Package
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: GetByID: %v", ErrQuery, err)
	}
	return &p, nil
}

// FindByIDs resolves package references. Missing IDs are simply absent from the result.
func (r *PackageRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Package, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Package
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: FindByIDs: %v", ErrQuery, err)
	}
	return out, nil
}

// FindCreatedBetween returns the packages sold in [start, end].
func (r *PackageRepository) FindCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Package, error) {
	var out []models.Package
	err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: FindCreatedBetween: %v", ErrQuery, err)
	}
	return out, nil
}

// ListAfter pages through packages by ascending ID.
func (r *PackageRepository) ListAfter(ctx context.Context, afterID uint, limit int) ([]models.Package, error) {
	var out []models.Package
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: ListAfter: %v", ErrQuery, err)
	}
	return out, nil
}

// FindByCustomerIDs returns every package owned by the customers.
func (r *PackageRepository) FindByCustomerIDs(ctx context.Context, customerIDs []uint) ([]models.Package, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	var out []models.Package
	if err := r.db.WithContext(ctx).Where("customer_id IN ?", customerIDs).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: FindByCustomerIDs: %v", ErrQuery, err)
	}
	return out, nil
}

// UpdateValidity rewrites a package's validity window.
func (r *PackageRepository) UpdateValidity(ctx context.Context, id uint, validFrom, validTo time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Package{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"valid_from": validFrom, "valid_to": validTo})
	if res.Error != nil {
		return fmt.Errorf("%w: UpdateValidity: %v", ErrQuery, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	"studio_engine/models"

	"gorm.io/gorm"
)

// ReportRepository persists payment reports. The unique index on
// (year, month, report_type) is the final arbiter between concurrent generators.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// FindByPeriod returns the report for key with its teacher payments in order.
func (r *ReportRepository) FindByPeriod(ctx context.Context, key models.PeriodKey) (*models.PaymentReport, error) {
	var report models.PaymentReport
	err := r.db.WithContext(ctx).
		Preload("TeacherPayments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("year = ? AND month = ? AND report_type = ?", key.Year, key.Month, key.ReportType).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: FindByPeriod: %v", ErrQuery, err)
	}
	return &report, nil
}

// ExistsForPeriod is the cheap existence check run before gathering.
func (r *ReportRepository) ExistsForPeriod(ctx context.Context, key models.PeriodKey) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentReport{}).
		Where("year = ? AND month = ? AND report_type = ?", key.Year, key.Month, key.ReportType).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: ExistsForPeriod: %v", ErrQuery, err)
	}
	return count > 0, nil
}

// Create inserts the report, its teacher payments, and links the incorporated
// bonuses and expenses, all in one transaction.
func (r *ReportRepository) Create(ctx context.Context, report *models.PaymentReport, bonusIDs, expenseIDs []uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertReport(tx, report, bonusIDs, expenseIDs)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePeriod
		}
		return fmt.Errorf("%w: Create: %v", ErrQuery, err)
	}
	return nil
}

// Replace swaps the stored report for report's period with report in one
// transaction. It reports whether a previous report was removed. On any
// failure the previous report is left untouched.
func (r *ReportRepository) Replace(ctx context.Context, report *models.PaymentReport, bonusIDs, expenseIDs []uint) (bool, error) {
	replaced := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous models.PaymentReport
		err := tx.Where("year = ? AND month = ? AND report_type = ?", report.Year, report.Month, report.ReportType).
			First(&previous).Error
		switch {
		case err == nil:
			if err := deleteReport(tx, &previous); err != nil {
				return err
			}
			replaced = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return insertReport(tx, report, bonusIDs, expenseIDs)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, ErrDuplicatePeriod
		}
		return false, fmt.Errorf("%w: Replace: %v", ErrQuery, err)
	}
	return replaced, nil
}

func insertReport(tx *gorm.DB, report *models.PaymentReport, bonusIDs, expenseIDs []uint) error {
	if err := tx.Create(report).Error; err != nil {
		return err
	}
	if err := linkToReport(tx, &models.Bonus{}, bonusIDs, report.ID).Error; err != nil {
		return err
	}
	return linkToReport(tx, &models.Expense{}, expenseIDs, report.ID).Error
}

// linkToReport points the unlinked rows among ids at reportID. A bonus or
// expense stays with the first report that incorporated it.
func linkToReport(tx *gorm.DB, model interface{}, ids []uint, reportID uint) *gorm.DB {
	if len(ids) == 0 {
		return tx
	}
	return tx.Model(model).Where("id IN ? AND report_id IS NULL", ids).Update("report_id", reportID)
}

// deleteReport removes a report, its payments, and releases its bonus/expense links.
func deleteReport(tx *gorm.DB, report *models.PaymentReport) error {
	if err := tx.Where("report_id = ?", report.ID).Delete(&models.TeacherPayment{}).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Bonus{}).Where("report_id = ?", report.ID).Update("report_id", nil).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Expense{}).Where("report_id = ?", report.ID).Update("report_id", nil).Error; err != nil {
		return err
	}
	return tx.Unscoped().Delete(report).Error
}

// CreateArchive records an exported workbook.
func (r *ReportRepository) CreateArchive(ctx context.Context, archive *models.ReportArchive) error {
	if err := r.db.WithContext(ctx).Create(archive).Error; err != nil {
		return fmt.Errorf("%w: CreateArchive: %v", ErrQuery, err)
	}
	return nil
}

// HasArchive reports whether a completed archive exists for the report.
func (r *ReportRepository) HasArchive(ctx context.Context, reportID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReportArchive{}).
		Where("report_id = ? AND status = ?", reportID, "completed").
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: HasArchive: %v", ErrQuery, err)
	}
	return count > 0, nil
}

package services

import (
	"context"
	"time"

	"studio_engine/models"
	"studio_engine/repositories"
)

// BookingStore is the booking access the lifecycle engine needs:
// read by predicate and conditional (compare-and-swap) writes.
type BookingStore interface {
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
	FindAutoConfirmCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	FindAutoCompleteCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	TransitionStatus(ctx context.Context, change repositories.StatusChange) (bool, error)
	AutoConfirm(ctx context.Context, bookingID uint, event *models.NotificationEvent) (bool, error)
	FindCompletedBetween(ctx context.Context, start, end time.Time) ([]models.Booking, error)
	FindByPackageIDs(ctx context.Context, packageIDs []uint) ([]models.Booking, error)
	FindByCustomerIDs(ctx context.Context, customerIDs []uint) ([]models.Booking, error)
}

// PackageStore is read access to packages plus the auditor's validity repair.
type PackageStore interface {
	GetByID(ctx context.Context, id uint) (*models.Package, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Package, error)
	FindCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Package, error)
	ListAfter(ctx context.Context, afterID uint, limit int) ([]models.Package, error)
	FindByCustomerIDs(ctx context.Context, customerIDs []uint) ([]models.Package, error)
	UpdateValidity(ctx context.Context, id uint, validFrom, validTo time.Time) error
}

// DirectoryStore reads collaborator-owned reference data.
type DirectoryStore interface {
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	ListCommissionRates(ctx context.Context) ([]models.CommissionRate, error)
	BonusesFor(ctx context.Context, year, month int) ([]models.Bonus, error)
	ExpensesFor(ctx context.Context, year, month int) ([]models.Expense, error)
	ListCustomersAfter(ctx context.Context, afterID uint, limit int) ([]models.Customer, error)
	UpdateCustomerCreatedAt(ctx context.Context, id uint, createdAt time.Time) error
}

// ReportStore persists payment reports under a unique period key.
type ReportStore interface {
	FindByPeriod(ctx context.Context, key models.PeriodKey) (*models.PaymentReport, error)
	ExistsForPeriod(ctx context.Context, key models.PeriodKey) (bool, error)
	Create(ctx context.Context, report *models.PaymentReport, bonusIDs, expenseIDs []uint) error
	Replace(ctx context.Context, report *models.PaymentReport, bonusIDs, expenseIDs []uint) (bool, error)
}

// ArchiveStore records exported report workbooks.
type ArchiveStore interface {
	CreateArchive(ctx context.Context, archive *models.ReportArchive) error
	HasArchive(ctx context.Context, reportID uint) (bool, error)
}

var (
	_ BookingStore   = (*repositories.BookingRepository)(nil)
	_ PackageStore   = (*repositories.PackageRepository)(nil)
	_ DirectoryStore = (*repositories.DirectoryRepository)(nil)
	_ ReportStore    = (*repositories.ReportRepository)(nil)
	_ ArchiveStore   = (*repositories.ReportRepository)(nil)
)

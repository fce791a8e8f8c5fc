package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TeacherType is the commission class of a teacher
type TeacherType string

const (
	TeacherFreelance TeacherType = "freelance"
	TeacherStudio    TeacherType = "studio"
)

func (t TeacherType) Valid() bool {
	return t == TeacherFreelance || t == TeacherStudio
}

// ReportType of a payment report. All types resolve to the containing month.
type ReportType string

const (
	ReportMonthly   ReportType = "monthly"
	ReportQuarterly ReportType = "quarterly"
	ReportAnnual    ReportType = "annual"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportMonthly, ReportQuarterly, ReportAnnual:
		return true
	}
	return false
}

// GeneratedBy records which path produced a report.
type GeneratedBy string

const (
	GeneratedAuto   GeneratedBy = "auto"
	GeneratedManual GeneratedBy = "manual"
)

// PeriodKey uniquely identifies a reporting period.
type PeriodKey struct {
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	ReportType ReportType `json:"report_type"`
}

func (k PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d/%s", k.Year, k.Month, k.ReportType)
}

// Teacher model
type Teacher struct {
	BaseModel
	Name        string          `json:"name" gorm:"size:200;not null"`
	Email       string          `json:"email" gorm:"size:255;uniqueIndex"`
	TeacherType TeacherType     `json:"teacher_type" gorm:"size:20;not null;type:enum('freelance','studio')"`
	BaseSalary  decimal.Decimal `json:"base_salary" gorm:"type:decimal(12,2);not null;default:0"` // studio teachers only
	Active      bool            `json:"active" gorm:"default:true"`
}

// CommissionRate is one entry of the teacher-class rate table
type CommissionRate struct {
	BaseModel
	TeacherType TeacherType     `json:"teacher_type" gorm:"size:20;not null;uniqueIndex:idx_rate_class;type:enum('freelance','studio')"`
	SessionType SessionType     `json:"session_type" gorm:"size:20;not null;uniqueIndex:idx_rate_class;type:enum('private','duo','group')"`
	Base        decimal.Decimal `json:"base" gorm:"type:decimal(12,2);not null"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:decimal(6,4);not null"`
}

// Bonus paid to a teacher for a month
type Bonus struct {
	BaseModel
	TeacherID   uint            `json:"teacher_id" gorm:"not null;index"`
	Month       int             `json:"month" gorm:"not null;index:idx_bonus_period"`
	Year        int             `json:"year" gorm:"not null;index:idx_bonus_period"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Description string          `json:"description" gorm:"size:500"`
	ReportID    *uint           `json:"report_id" gorm:"index;default:null"`
}

// Expense of the studio for a month
type Expense struct {
	BaseModel
	Category    string          `json:"category" gorm:"size:100;not null"`
	Month       int             `json:"month" gorm:"not null;index:idx_expense_period"`
	Year        int             `json:"year" gorm:"not null;index:idx_expense_period"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Description string          `json:"description" gorm:"size:500"`
	ReportID    *uint           `json:"report_id" gorm:"index;default:null"`
}

// PaymentReport is the immutable financial record of one period.
// Rows are only removed through the regenerate path, with an unscoped delete,
// so the unique period key never collides with a soft-deleted row.
type PaymentReport struct {
	ID                   uint             `json:"id" gorm:"primaryKey"`
	Year                 int              `json:"year" gorm:"not null;uniqueIndex:idx_report_period"`
	Month                int              `json:"month" gorm:"not null;uniqueIndex:idx_report_period"`
	ReportType           ReportType       `json:"report_type" gorm:"size:20;not null;uniqueIndex:idx_report_period;type:enum('monthly','quarterly','annual')"`
	StartDate            time.Time        `json:"start_date" gorm:"not null"`
	EndDate              time.Time        `json:"end_date" gorm:"not null"`
	TotalRevenue         decimal.Decimal  `json:"total_revenue" gorm:"type:decimal(14,2);not null"`
	TotalTeacherPayments decimal.Decimal  `json:"total_teacher_payments" gorm:"type:decimal(14,2);not null"`
	TotalExpenses        decimal.Decimal  `json:"total_expenses" gorm:"type:decimal(14,2);not null"`
	TotalCosts           decimal.Decimal  `json:"total_costs" gorm:"type:decimal(14,2);not null"`
	ProfitLoss           decimal.Decimal  `json:"profit_loss" gorm:"type:decimal(14,2);not null"`
	PackagesSold         JSON             `json:"packages_sold" gorm:"type:json"`
	TeacherPayments      []TeacherPayment `json:"teacher_payments" gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
	GeneratedAt          time.Time        `json:"generated_at" gorm:"not null"`
	GeneratedBy          GeneratedBy      `json:"generated_by" gorm:"size:20;not null;type:enum('auto','manual')"`
}

// Key returns the report's period key.
func (r *PaymentReport) Key() PeriodKey {
	return PeriodKey{Year: r.Year, Month: r.Month, ReportType: r.ReportType}
}

// TeacherPayment is one teacher's line in a payment report
type TeacherPayment struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	ReportID          uint            `json:"report_id" gorm:"not null;index"`
	Position          int             `json:"position" gorm:"not null"`
	TeacherID         uint            `json:"teacher_id" gorm:"not null"`
	TeacherName       string          `json:"teacher_name" gorm:"size:200"`
	TeacherType       TeacherType     `json:"teacher_type" gorm:"size:20"`
	PrivateSessions   int             `json:"private_sessions"`
	PrivateCommission decimal.Decimal `json:"private_commission" gorm:"type:decimal(12,2)"`
	DuoSessions       int             `json:"duo_sessions"`
	DuoCommission     decimal.Decimal `json:"duo_commission" gorm:"type:decimal(12,2)"`
	GroupSessions     int             `json:"group_sessions"`
	GroupCommission   decimal.Decimal `json:"group_commission" gorm:"type:decimal(12,2)"`
	TotalCommission   decimal.Decimal `json:"total_commission" gorm:"type:decimal(12,2)"`
	BaseSalary        decimal.Decimal `json:"base_salary" gorm:"type:decimal(12,2)"`
	Bonuses           decimal.Decimal `json:"bonuses" gorm:"type:decimal(12,2)"`
	Total             decimal.Decimal `json:"total" gorm:"type:decimal(12,2)"`
}

// PackageSnapshot is the frozen view of a sold package inside a report.
type PackageSnapshot struct {
	PackageID     uint            `json:"package_id"`
	CustomerID    uint            `json:"customer_id"`
	Name          string          `json:"name"`
	SessionType   SessionType     `json:"session_type"`
	TotalSessions int             `json:"total_sessions"`
	Price         decimal.Decimal `json:"price"`
	SoldAt        time.Time       `json:"sold_at"`
}

// ReportArchive tracks exported report workbooks stored in S3
type ReportArchive struct {
	BaseModel
	ReportID   uint       `json:"report_id" gorm:"not null;index"`
	Year       int        `json:"year" gorm:"not null"`
	Month      int        `json:"month" gorm:"not null"`
	ReportType ReportType `json:"report_type" gorm:"size:20;not null"`
	FileName   string     `json:"file_name" gorm:"size:255;not null"`
	S3Key      string     `json:"s3_key" gorm:"size:500;not null"`
	FileSize   int64      `json:"file_size" gorm:"not null"`
	Status     string     `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error      string     `json:"error" gorm:"type:text"`
}

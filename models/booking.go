package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingPending               BookingStatus = "pending"
	BookingConfirmed             BookingStatus = "confirmed"
	BookingCancellationRequested BookingStatus = "cancellation_requested"
	BookingCancelled             BookingStatus = "cancelled"
	BookingCompleted             BookingStatus = "completed"
	BookingNoShow                BookingStatus = "no_show"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancellationRequested,
		BookingCancelled, BookingCompleted, BookingNoShow:
		return true
	}
	return false
}

// SessionType is the billing category of a session.
type SessionType string

const (
	SessionPrivate SessionType = "private"
	SessionDuo     SessionType = "duo"
	SessionGroup   SessionType = "group"
)

// SessionTypes in the fixed order used by reports and commission breakdowns.
var SessionTypes = []SessionType{SessionPrivate, SessionDuo, SessionGroup}

func (s SessionType) Valid() bool {
	switch s {
	case SessionPrivate, SessionDuo, SessionGroup:
		return true
	}
	return false
}

// PackageStatus of a prepaid bundle
type PackageStatus string

const (
	PackageActive   PackageStatus = "active"
	PackageExpired  PackageStatus = "expired"
	PackageDepleted PackageStatus = "depleted"
)

// PackageValidityMonths is the policy length of a package validity window.
const PackageValidityMonths = 12

var (
	ErrInvalidInterval   = errors.New("models: booking start time must be before end time")
	ErrAttendanceMarking = errors.New("models: attendance_marked_at must be set only for completed or no-show bookings")
	ErrAutoConfirmFlag   = errors.New("models: auto_confirmed booking cannot be pending")
)

// Booking model. CreatedAt doubles as the instant the booking became pending.
type Booking struct {
	BaseModel
	CustomerID         uint          `json:"customer_id" gorm:"not null;index"`
	TeacherID          uint          `json:"teacher_id" gorm:"not null;index"`
	PackageID          *uint         `json:"package_id" gorm:"index;default:null"` // null for ad-hoc sessions
	SessionType        SessionType   `json:"session_type" gorm:"size:20;type:enum('private','duo','group');default:null"`
	StartTime          time.Time     `json:"start_time" gorm:"not null;index"`
	EndTime            time.Time     `json:"end_time" gorm:"not null;index"`
	Status             BookingStatus `json:"status" gorm:"size:50;not null;default:'pending';index;type:enum('pending','confirmed','cancellation_requested','cancelled','completed','no_show')"`
	AutoConfirmed      bool          `json:"auto_confirmed" gorm:"not null;default:false"`
	AttendanceMarkedAt *time.Time    `json:"attendance_marked_at"`
	Notes              string        `json:"notes" gorm:"type:text"`

	// Relationships
	Customer Customer `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Teacher  Teacher  `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Package  *Package `json:"package,omitempty" gorm:"foreignKey:PackageID"`
}

// PendingSince is the instant the booking entered the pending state.
func (b *Booking) PendingSince() time.Time {
	return b.CreatedAt
}

// IsTerminal reports whether no automatic edge leaves the booking's status.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingCompleted || b.Status == BookingCancelled || b.Status == BookingNoShow
}

// Validate checks the record-level invariants.
func (b *Booking) Validate() error {
	if !b.StartTime.Before(b.EndTime) {
		return ErrInvalidInterval
	}
	attended := b.Status == BookingCompleted || b.Status == BookingNoShow
	if attended != (b.AttendanceMarkedAt != nil) {
		return ErrAttendanceMarking
	}
	if b.AutoConfirmed && b.Status == BookingPending {
		return ErrAutoConfirmFlag
	}
	return nil
}

// Package model (prepaid bundle of sessions)
type Package struct {
	BaseModel
	CustomerID        uint            `json:"customer_id" gorm:"not null;index"`
	Name              string          `json:"name" gorm:"size:255;not null"`
	SessionType       SessionType     `json:"session_type" gorm:"size:20;not null;type:enum('private','duo','group')"`
	TotalSessions     int             `json:"total_sessions" gorm:"not null"`
	RemainingSessions int             `json:"remaining_sessions" gorm:"not null"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	ValidFrom         time.Time       `json:"valid_from" gorm:"not null"`
	ValidTo           time.Time       `json:"valid_to" gorm:"not null"`
	Status            PackageStatus   `json:"status" gorm:"size:20;not null;default:'active';type:enum('active','expired','depleted')"`

	Customer Customer `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
}

// PolicyValidTo returns ValidFrom plus the policy validity window.
func (p *Package) PolicyValidTo() time.Time {
	return p.ValidFrom.AddDate(0, PackageValidityMonths, 0)
}

// EffectiveStatus derives the status at now without persisting it.
func (p *Package) EffectiveStatus(now time.Time) PackageStatus {
	if p.RemainingSessions <= 0 {
		return PackageDepleted
	}
	if !p.ValidTo.IsZero() && now.After(p.ValidTo) {
		return PackageExpired
	}
	return PackageActive
}

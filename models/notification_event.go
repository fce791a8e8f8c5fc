package models

import "time"

// NotificationKind identifies an engine event consumed by notification collaborators.
type NotificationKind string

const (
	NotificationAutoConfirmed NotificationKind = "booking.auto_confirmed"
)

// NotificationEvent is an outbox row written in the same transaction as the
// state change that produced it. The (booking_id, kind) key makes emission one-way.
type NotificationEvent struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	EventID     string           `json:"event_id" gorm:"size:36;not null;uniqueIndex"`
	BookingID   uint             `json:"booking_id" gorm:"not null;uniqueIndex:idx_event_booking_kind"`
	Kind        NotificationKind `json:"kind" gorm:"size:64;not null;uniqueIndex:idx_event_booking_kind"`
	CustomerID  uint             `json:"customer_id" gorm:"not null"`
	TeacherID   uint             `json:"teacher_id" gorm:"not null"`
	Payload     JSON             `json:"payload" gorm:"type:json"`
	OccurredAt  time.Time        `json:"occurred_at" gorm:"not null"`
	ClaimedAt   *time.Time       `json:"claimed_at" gorm:"index"`
	DeliveredAt *time.Time       `json:"delivered_at"`
	Error       string           `json:"error" gorm:"type:text"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AutoConfirmedPayload is the body published for NotificationAutoConfirmed.
type AutoConfirmedPayload struct {
	BookingID   uint      `json:"booking_id"`
	CustomerID  uint      `json:"customer_id"`
	TeacherID   uint      `json:"teacher_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

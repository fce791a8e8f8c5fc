package services

import (
	"time"

	"studio_engine/models"
)

// DefaultAutoConfirmAfter is how long a booking may stay pending before the engine confirms it.
const DefaultAutoConfirmAfter = 12 * time.Hour

// TransitionKind names an automatic edge owned by the engine.
type TransitionKind string

const (
	NoTransition TransitionKind = ""
	AutoConfirm  TransitionKind = "auto_confirm"
	AutoComplete TransitionKind = "auto_complete"
)

// Decision is the state machine's verdict for one booking at one instant.
type Decision struct {
	Kind TransitionKind
	From models.BookingStatus
	To   models.BookingStatus
	At   time.Time
}

// Applies reports whether the decision requires a write.
func (d Decision) Applies() bool { return d.Kind != NoTransition }

var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:               {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed:             {models.BookingCompleted, models.BookingNoShow, models.BookingCancellationRequested, models.BookingCancelled},
	models.BookingCancellationRequested: {models.BookingCancelled, models.BookingConfirmed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// completed, cancelled and no_show have no outgoing edges.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BookingStateMachine decides automatic transitions. It holds no state besides
// its policy and never touches storage.
type BookingStateMachine struct {
	autoConfirmAfter time.Duration
}

func NewBookingStateMachine(autoConfirmAfter time.Duration) *BookingStateMachine {
	if autoConfirmAfter <= 0 {
		autoConfirmAfter = DefaultAutoConfirmAfter
	}
	return &BookingStateMachine{autoConfirmAfter: autoConfirmAfter}
}

// AutoConfirmAfter returns the pending timeout.
func (m *BookingStateMachine) AutoConfirmAfter() time.Duration {
	return m.autoConfirmAfter
}

// Decide returns the automatic transition that applies to b at now, if any.
// No-show is a manual decision and is never returned.
func (m *BookingStateMachine) Decide(b *models.Booking, now time.Time) Decision {
	switch b.Status {
	case models.BookingPending:
		if b.AutoConfirmed {
			return Decision{}
		}
		if now.Sub(b.PendingSince()) >= m.autoConfirmAfter {
			return Decision{Kind: AutoConfirm, From: models.BookingPending, To: models.BookingConfirmed, At: now}
		}
	case models.BookingConfirmed:
		if b.EndTime.Before(now) {
			return Decision{Kind: AutoComplete, From: models.BookingConfirmed, To: models.BookingCompleted, At: now}
		}
	}
	return Decision{}
}

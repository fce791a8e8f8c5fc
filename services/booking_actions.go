package services

import (
	"context"
	"errors"
	"fmt"

	"studio_engine/clock"
	"studio_engine/models"
	"studio_engine/repositories"

	"github.com/sirupsen/logrus"
)

// ManualAction is a lifecycle change requested by a teacher, admin or customer.
type ManualAction string

const (
	ActionApprove             ManualAction = "approve"
	ActionReject              ManualAction = "reject"
	ActionRequestCancellation ManualAction = "request_cancellation"
	ActionApproveCancellation ManualAction = "approve_cancellation"
	ActionRejectCancellation  ManualAction = "reject_cancellation"
	ActionCancel              ManualAction = "cancel"
	ActionMarkNoShow          ManualAction = "mark_no_show"
)

var (
	ErrUnknownAction     = errors.New("booking: unknown action")
	ErrInvalidTransition = errors.New("booking: transition not allowed from current status")
	ErrBookingChanged    = errors.New("booking: status changed concurrently")
)

type actionEdge struct {
	from models.BookingStatus
	to   models.BookingStatus
}

var actionEdges = map[ManualAction]actionEdge{
	ActionApprove:             {models.BookingPending, models.BookingConfirmed},
	ActionReject:              {models.BookingPending, models.BookingCancelled},
	ActionRequestCancellation: {models.BookingConfirmed, models.BookingCancellationRequested},
	ActionApproveCancellation: {models.BookingCancellationRequested, models.BookingCancelled},
	ActionRejectCancellation:  {models.BookingCancellationRequested, models.BookingConfirmed},
	ActionCancel:              {models.BookingConfirmed, models.BookingCancelled},
	ActionMarkNoShow:          {models.BookingConfirmed, models.BookingNoShow},
}

// BookingActions applies manual decisions with the same conditional write the
// scheduler uses, so a manual decision and an automatic one can never both land.
type BookingActions struct {
	store BookingStore
	clock clock.Clock
	log   logrus.FieldLogger
}

func NewBookingActions(store BookingStore, clk clock.Clock, log logrus.FieldLogger) *BookingActions {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BookingActions{store: store, clock: clk, log: log}
}

// Apply performs action on the booking and returns the fresh record.
func (a *BookingActions) Apply(ctx context.Context, bookingID uint, action ManualAction, note string) (*models.Booking, error) {
	edge, ok := actionEdges[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	current, err := a.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != edge.from || !CanTransition(edge.from, edge.to) {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current.Status)
	}

	change := repositories.StatusChange{BookingID: bookingID, From: edge.from, To: edge.to}
	if edge.to == models.BookingNoShow {
		now := a.clock.Now()
		change.AttendanceMarkedAt = &now
	}
	if note != "" {
		notes := note
		if current.Notes != "" {
			notes = current.Notes + "\n" + note
		}
		change.Notes = &notes
	}

	applied, err := a.store.TransitionStatus(ctx, change)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrBookingChanged
	}

	a.log.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"action":     action,
		"from":       edge.from,
		"to":         edge.to,
	}).Info("manual booking transition applied")

	return a.store.GetByID(ctx, bookingID)
}

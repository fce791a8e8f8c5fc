package services

import (
	"context"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"
	"studio_engine/models"
	"studio_engine/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize bounds the number of candidates handled per tick.
const DefaultBatchSize = 500

// TickResult summarises one batch of automatic transitions.
type TickResult struct {
	Kind       TransitionKind `json:"kind"`
	Candidates int            `json:"candidates"`
	Applied    int            `json:"applied"`
	Conflicts  int            `json:"conflicts"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Err        error          `json:"-"`
}

// TransitionScheduler drives the state machine over the live booking set.
// Every write is conditioned on the booking's current status, so re-running a
// tick (after a crash or on a second instance) only produces no-ops.
type TransitionScheduler struct {
	store     BookingStore
	machine   *BookingStateMachine
	clock     clock.Clock
	batchSize int
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

func NewTransitionScheduler(store BookingStore, machine *BookingStateMachine, clk clock.Clock, batchSize int, m *metrics.Metrics, log logrus.FieldLogger) *TransitionScheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TransitionScheduler{
		store:     store,
		machine:   machine,
		clock:     clk,
		batchSize: batchSize,
		metrics:   m,
		log:       log,
	}
}

// RunAutoConfirm confirms pending bookings older than the configured timeout.
func (s *TransitionScheduler) RunAutoConfirm(ctx context.Context) TickResult {
	now := s.clock.Now()
	res := TickResult{Kind: AutoConfirm}

	cutoff := now.Add(-s.machine.AutoConfirmAfter())
	candidates, err := s.store.FindAutoConfirmCandidates(ctx, cutoff, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("auto-confirm: failed to load candidates, retrying next tick")
		s.metrics.Transitions.WithLabelValues(string(AutoConfirm), "error").Inc()
		res.Err = err
		return res
	}
	res.Candidates = len(candidates)

	for i := range candidates {
		b := &candidates[i]
		decision := s.machine.Decide(b, now)
		if decision.Kind != AutoConfirm {
			res.Skipped++
			continue
		}

		event, err := newAutoConfirmedEvent(b, now)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Error("auto-confirm: failed to build notification event")
			res.Failed++
			continue
		}

		applied, err := s.store.AutoConfirm(ctx, b.ID, event)
		switch {
		case err != nil:
			res.Failed++
			s.metrics.Transitions.WithLabelValues(string(AutoConfirm), "error").Inc()
			s.log.WithError(err).WithField("booking_id", b.ID).Error("auto-confirm: write failed, retrying next tick")
		case !applied:
			// A manual approve/reject got there first; the manual decision wins.
			res.Conflicts++
			s.metrics.Transitions.WithLabelValues(string(AutoConfirm), "conflict").Inc()
			s.log.WithField("booking_id", b.ID).Debug("auto-confirm: booking no longer pending, dropped")
		default:
			res.Applied++
			s.metrics.Transitions.WithLabelValues(string(AutoConfirm), "applied").Inc()
			s.log.WithFields(logrus.Fields{
				"booking_id":    b.ID,
				"pending_since": b.PendingSince(),
			}).Info("auto-confirm: booking confirmed")
		}
	}

	s.logTick(res)
	return res
}

// RunAutoComplete completes confirmed bookings whose end time has passed.
func (s *TransitionScheduler) RunAutoComplete(ctx context.Context) TickResult {
	now := s.clock.Now()
	res := TickResult{Kind: AutoComplete}

	candidates, err := s.store.FindAutoCompleteCandidates(ctx, now, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("auto-complete: failed to load candidates, retrying next tick")
		s.metrics.Transitions.WithLabelValues(string(AutoComplete), "error").Inc()
		res.Err = err
		return res
	}
	res.Candidates = len(candidates)

	for i := range candidates {
		b := &candidates[i]
		decision := s.machine.Decide(b, now)
		if decision.Kind != AutoComplete {
			res.Skipped++
			continue
		}

		markedAt := decision.At
		applied, err := s.store.TransitionStatus(ctx, repositories.StatusChange{
			BookingID:          b.ID,
			From:               decision.From,
			To:                 decision.To,
			AttendanceMarkedAt: &markedAt,
		})
		switch {
		case err != nil:
			res.Failed++
			s.metrics.Transitions.WithLabelValues(string(AutoComplete), "error").Inc()
			s.log.WithError(err).WithField("booking_id", b.ID).Error("auto-complete: write failed, retrying next tick")
		case !applied:
			res.Conflicts++
			s.metrics.Transitions.WithLabelValues(string(AutoComplete), "conflict").Inc()
			s.log.WithField("booking_id", b.ID).Debug("auto-complete: booking no longer confirmed, skipped")
		default:
			res.Applied++
			s.metrics.Transitions.WithLabelValues(string(AutoComplete), "applied").Inc()
			s.log.WithFields(logrus.Fields{
				"booking_id": b.ID,
				"end_time":   b.EndTime,
			}).Info("auto-complete: booking completed")
		}
	}

	s.logTick(res)
	return res
}

func (s *TransitionScheduler) logTick(res TickResult) {
	if res.Candidates == 0 {
		return
	}
	s.log.WithFields(logrus.Fields{
		"kind":       res.Kind,
		"candidates": res.Candidates,
		"applied":    res.Applied,
		"conflicts":  res.Conflicts,
		"failed":     res.Failed,
		"skipped":    res.Skipped,
	}).Info("transition tick finished")
}

func newAutoConfirmedEvent(b *models.Booking, now time.Time) (*models.NotificationEvent, error) {
	payload, err := models.MarshalJSONColumn(models.AutoConfirmedPayload{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		TeacherID:   b.TeacherID,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		ConfirmedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return &models.NotificationEvent{
		EventID:    uuid.NewString(),
		BookingID:  b.ID,
		Kind:       models.NotificationAutoConfirmed,
		CustomerID: b.CustomerID,
		TeacherID:  b.TeacherID,
		Payload:    payload,
		OccurredAt: now,
	}, nil
}

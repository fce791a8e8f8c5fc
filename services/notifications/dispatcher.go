// Package notifications delivers engine events (auto-confirm) to the studio's
// notification channels. Events are read from the outbox table written in the
// same transaction as the booking change.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"
	"studio_engine/models"

	"github.com/sirupsen/logrus"
)

// Message is the rendered form of one outbox event.
type Message struct {
	EventID    string                  `json:"event_id"`
	Kind       models.NotificationKind `json:"kind"`
	BookingID  uint                    `json:"booking_id"`
	CustomerID uint                    `json:"customer_id"`
	TeacherID  uint                    `json:"teacher_id"`
	Title      string                  `json:"title"`
	Body       string                  `json:"body"`
	Payload    json.RawMessage         `json:"payload,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// Publisher is one delivery channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

// EventStore is the outbox access the dispatcher needs.
type EventStore interface {
	FindUnclaimed(ctx context.Context, limit int) ([]models.NotificationEvent, error)
	Claim(ctx context.Context, id uint, at time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id uint, at time.Time, deliveryErr string) error
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Lost      int `json:"lost"` // claimed by another dispatcher first
}

const defaultDispatchBatch = 100

// Dispatcher claims outbox events and hands them to every publisher.
// An event is claimed before it is published and never re-claimed, so each
// event reaches a channel at most once.
type Dispatcher struct {
	store      EventStore
	publishers []Publisher
	clock      clock.Clock
	batch      int
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

func NewDispatcher(store EventStore, publishers []Publisher, clk clock.Clock, m *metrics.Metrics, log logrus.FieldLogger) *Dispatcher {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{store: store, publishers: publishers, clock: clk, batch: defaultDispatchBatch, metrics: m, log: log}
}

// DispatchPending delivers one batch of unclaimed events.
func (d *Dispatcher) DispatchPending(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	events, err := d.store.FindUnclaimed(ctx, d.batch)
	if err != nil {
		return res, err
	}

	for i := range events {
		ev := &events[i]
		ok, err := d.store.Claim(ctx, ev.ID, d.clock.Now())
		if err != nil {
			d.log.WithError(err).WithField("event_id", ev.EventID).Error("notification claim failed")
			res.Failed++
			continue
		}
		if !ok {
			res.Lost++
			continue
		}
		res.Claimed++

		msg := Render(ev)
		var errs []error
		for _, p := range d.publishers {
			if err := p.Publish(ctx, msg); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				d.metrics.Notifications.WithLabelValues(p.Name(), "error").Inc()
				d.log.WithError(err).WithFields(logrus.Fields{
					"event_id":   ev.EventID,
					"booking_id": ev.BookingID,
					"sink":       p.Name(),
				}).Warn("notification publish failed")
				continue
			}
			d.metrics.Notifications.WithLabelValues(p.Name(), "delivered").Inc()
		}

		deliveryErr := ""
		if joined := errors.Join(errs...); joined != nil {
			deliveryErr = joined.Error()
			res.Failed++
		} else {
			res.Delivered++
		}
		if err := d.store.MarkDelivered(ctx, ev.ID, d.clock.Now(), deliveryErr); err != nil {
			d.log.WithError(err).WithField("event_id", ev.EventID).Error("notification outcome not recorded")
		}
	}

	if len(events) > 0 {
		d.log.WithFields(logrus.Fields{
			"claimed":   res.Claimed,
			"delivered": res.Delivered,
			"failed":    res.Failed,
			"lost":      res.Lost,
		}).Info("notification dispatch finished")
	}
	return res, nil
}

// Render turns an outbox event into a message.
func Render(ev *models.NotificationEvent) Message {
	msg := Message{
		EventID:    ev.EventID,
		Kind:       ev.Kind,
		BookingID:  ev.BookingID,
		CustomerID: ev.CustomerID,
		TeacherID:  ev.TeacherID,
		OccurredAt: ev.OccurredAt,
	}
	if !ev.Payload.IsNull() {
		msg.Payload = json.RawMessage(ev.Payload)
	}

	switch ev.Kind {
	case models.NotificationAutoConfirmed:
		msg.Title = "Booking confirmed"
		var p models.AutoConfirmedPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil && !p.StartTime.IsZero() {
			msg.Body = fmt.Sprintf("Booking #%d on %s was confirmed automatically.",
				ev.BookingID, p.StartTime.UTC().Format("2006-01-02 15:04 MST"))
		} else {
			msg.Body = fmt.Sprintf("Booking #%d was confirmed automatically.", ev.BookingID)
		}
	default:
		msg.Title = string(ev.Kind)
		msg.Body = fmt.Sprintf("Booking #%d: %s", ev.BookingID, ev.Kind)
	}
	return msg
}

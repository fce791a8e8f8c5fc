package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studio_engine/clock"
	"studio_engine/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutbox struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (o *memOutbox) FindUnclaimed(_ context.Context, limit int) ([]models.NotificationEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.NotificationEvent
	for _, e := range o.events {
		if e.ClaimedAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *memOutbox) Claim(_ context.Context, id uint, at time.Time) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.events {
		if o.events[i].ID == id && o.events[i].ClaimedAt == nil {
			o.events[i].ClaimedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (o *memOutbox) MarkDelivered(_ context.Context, id uint, at time.Time, deliveryErr string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.events {
		if o.events[i].ID == id {
			o.events[i].Error = deliveryErr
			if deliveryErr == "" {
				o.events[i].DeliveredAt = &at
			}
		}
	}
	return nil
}

type recordingPublisher struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Message
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, msg)
	return p.err
}

func autoConfirmedEvent(t *testing.T, id, bookingID uint) models.NotificationEvent {
	t.Helper()
	start := time.Date(2025, 11, 3, 3, 0, 0, 0, time.UTC)
	payload, err := models.MarshalJSONColumn(models.AutoConfirmedPayload{BookingID: bookingID, CustomerID: 5, TeacherID: 6, StartTime: start, EndTime: start.Add(time.Hour)})
	require.NoError(t, err)
	return models.NotificationEvent{
		ID:         id,
		EventID:    "evt-" + string(rune('a'+id)),
		BookingID:  bookingID,
		Kind:       models.NotificationAutoConfirmed,
		CustomerID: 5,
		TeacherID:  6,
		Payload:    payload,
	}
}

func TestDispatchDeliversOncePerEvent(t *testing.T) {
	outbox := &memOutbox{events: []models.NotificationEvent{autoConfirmedEvent(t, 1, 10), autoConfirmedEvent(t, 2, 11)}}
	pub := &recordingPublisher{name: "rec"}
	log, _ := test.NewNullLogger()
	d := NewDispatcher(outbox, []Publisher{pub}, clock.NewFixed(time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC), time.UTC), nil, log)

	res, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)

	res, err = d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)

	require.Len(t, pub.got, 2)
	assert.Equal(t, uint(10), pub.got[0].BookingID)
	assert.Equal(t, "Booking confirmed", pub.got[0].Title)
	assert.Contains(t, pub.got[0].Body, "2025-11-03 03:00")
	assert.NotNil(t, outbox.events[0].DeliveredAt)
}

func TestDispatchRecordsPublisherFailureWithoutRetry(t *testing.T) {
	outbox := &memOutbox{events: []models.NotificationEvent{autoConfirmedEvent(t, 1, 10)}}
	ok := &recordingPublisher{name: "ok"}
	broken := &recordingPublisher{name: "line", err: errors.New("push rejected")}
	log, _ := test.NewNullLogger()
	d := NewDispatcher(outbox, []Publisher{broken, ok}, clock.NewFixed(time.Now(), time.UTC), nil, log)

	res, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, ok.got, 1, "one failing channel does not block the others")
	assert.Contains(t, outbox.events[0].Error, "line: push rejected")
	assert.Nil(t, outbox.events[0].DeliveredAt)

	res, err = d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
	assert.Len(t, broken.got, 1)
}

func TestConcurrentDispatchersNeverDoubleDeliver(t *testing.T) {
	var events []models.NotificationEvent
	for id := uint(1); id <= 20; id++ {
		events = append(events, autoConfirmedEvent(t, id, 100+id))
	}
	outbox := &memOutbox{events: events}
	pub := &recordingPublisher{name: "rec"}
	log, _ := test.NewNullLogger()
	clk := clock.NewFixed(time.Now(), time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = NewDispatcher(outbox, []Publisher{pub}, clk, nil, log).DispatchPending(context.Background())
		}()
	}
	wg.Wait()

	seen := make(map[uint]int)
	for _, m := range pub.got {
		seen[m.BookingID]++
	}
	assert.Len(t, seen, 20)
	for booking, n := range seen {
		assert.Equal(t, 1, n, "booking %d", booking)
	}
}

type memWriter struct {
	rows []models.Notification
}

func (w *memWriter) CreateNotifications(_ context.Context, notifs []models.Notification) error {
	w.rows = append(w.rows, notifs...)
	return nil
}

func TestInAppServiceWritesDirectlyWithoutRedis(t *testing.T) {
	w := &memWriter{}
	log, _ := test.NewNullLogger()
	at := time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)
	svc := NewService(w, nil, true, clock.NewFixed(at, time.UTC), log)

	ev := autoConfirmedEvent(t, 1, 10)
	require.NoError(t, svc.Publish(context.Background(), Render(&ev)))

	require.Len(t, w.rows, 2)
	assert.Equal(t, uint(5), w.rows[0].UserID)
	assert.Equal(t, "customer", w.rows[0].UserKind)
	assert.Equal(t, uint(6), w.rows[1].UserID)
	assert.Equal(t, "teacher", w.rows[1].UserKind)
	assert.JSONEq(t, string(ev.Payload), string(w.rows[0].Data))
	assert.True(t, w.rows[0].CreatedAt.Equal(at), "creation time comes from the injected clock")
	assert.True(t, w.rows[1].CreatedAt.Equal(at))
}

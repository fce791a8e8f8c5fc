package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studio_engine/clock"
	"studio_engine/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func newScheduler(store BookingStore, now time.Time) (*TransitionScheduler, *clock.FixedClock) {
	clk := clock.NewFixed(now, time.UTC)
	return NewTransitionScheduler(store, NewBookingStateMachine(12*time.Hour), clk, 0, nil, quietLogger()), clk
}

func TestRunAutoConfirmConfirmsOnlyElapsedBookings(t *testing.T) {
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	store := newMemBookings(
		pendingBooking(1, created),
		pendingBooking(2, created.Add(time.Second)),
	)
	s, clk := newScheduler(store, time.Date(2025, 11, 1, 20, 59, 59, 0, time.UTC))

	res := s.RunAutoConfirm(context.Background())
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, models.BookingPending, store.get(1).Status)

	clk.Set(time.Date(2025, 11, 1, 21, 0, 0, 0, time.UTC))
	res = s.RunAutoConfirm(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Applied)

	b1 := store.get(1)
	assert.Equal(t, models.BookingConfirmed, b1.Status)
	assert.True(t, b1.AutoConfirmed)
	assert.Equal(t, models.BookingPending, store.get(2).Status)

	require.Len(t, store.events, 1)
	assert.Equal(t, uint(1), store.events[0].BookingID)
	assert.Equal(t, models.NotificationAutoConfirmed, store.events[0].Kind)
	assert.NotEmpty(t, store.events[0].EventID)
}

func TestRunAutoConfirmEmitsNotificationOnce(t *testing.T) {
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	store := newMemBookings(pendingBooking(1, created))
	s, clk := newScheduler(store, created.Add(13*time.Hour))

	s.RunAutoConfirm(context.Background())
	clk.Advance(5 * time.Minute)
	res := s.RunAutoConfirm(context.Background())

	assert.Equal(t, 0, res.Candidates)
	assert.Len(t, store.events, 1)
}

func TestManualRejectBeatsAutoConfirm(t *testing.T) {
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	store := newMemBookings(pendingBooking(1, created))
	s, clk := newScheduler(store, created.Add(13*time.Hour))
	actions := NewBookingActions(store, clk, quietLogger())

	// The manual reject lands between the candidate read and the conditional write.
	store.beforeWrite = func(id uint) {
		store.beforeWrite = nil
		_, err := actions.Apply(context.Background(), id, ActionReject, "teacher unavailable")
		require.NoError(t, err)
	}

	res := s.RunAutoConfirm(context.Background())
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Conflicts)

	b := store.get(1)
	assert.Equal(t, models.BookingCancelled, b.Status)
	assert.False(t, b.AutoConfirmed)
	assert.Empty(t, store.events)
}

func TestConcurrentAutoConfirmAndApproveSingleWinner(t *testing.T) {
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	store := newMemBookings(pendingBooking(1, created))
	s, clk := newScheduler(store, created.Add(13*time.Hour))
	actions := NewBookingActions(store, clk, quietLogger())

	var wg sync.WaitGroup
	var res TickResult
	var manualErr error
	wg.Add(2)
	go func() { defer wg.Done(); res = s.RunAutoConfirm(context.Background()) }()
	go func() { defer wg.Done(); _, manualErr = actions.Apply(context.Background(), 1, ActionApprove, "") }()
	wg.Wait()

	wins := res.Applied
	if manualErr == nil {
		wins++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, models.BookingConfirmed, store.get(1).Status)
	assert.Equal(t, res.Applied, len(store.events))
}

func TestRunAutoCompleteIsIdempotent(t *testing.T) {
	end := time.Date(2025, 11, 5, 11, 0, 0, 0, time.UTC)
	b := models.Booking{CustomerID: 1, TeacherID: 2, StartTime: end.Add(-time.Hour), EndTime: end, Status: models.BookingConfirmed}
	b.ID = 7
	store := newMemBookings(b)
	s, clk := newScheduler(store, end.Add(time.Minute))

	first := s.RunAutoComplete(context.Background())
	assert.Equal(t, 1, first.Applied)

	got := store.get(7)
	assert.Equal(t, models.BookingCompleted, got.Status)
	require.NotNil(t, got.AttendanceMarkedAt)
	assert.True(t, got.AttendanceMarkedAt.Equal(end.Add(time.Minute)))
	assert.NoError(t, got.Validate())

	clk.Advance(time.Hour)
	second := s.RunAutoComplete(context.Background())
	assert.Equal(t, 0, second.Candidates)
	assert.Equal(t, 0, second.Applied)
	assert.True(t, store.get(7).AttendanceMarkedAt.Equal(end.Add(time.Minute)))
}

func TestRunAutoCompleteSkipsCancellationRequested(t *testing.T) {
	end := time.Date(2025, 11, 5, 11, 0, 0, 0, time.UTC)
	b := models.Booking{StartTime: end.Add(-time.Hour), EndTime: end, Status: models.BookingCancellationRequested}
	b.ID = 3
	store := newMemBookings(b)
	s, _ := newScheduler(store, end.Add(24*time.Hour))

	res := s.RunAutoComplete(context.Background())
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, models.BookingCancellationRequested, store.get(3).Status)
}

func TestTickContinuesAfterPerRecordFailure(t *testing.T) {
	end := time.Date(2025, 11, 5, 11, 0, 0, 0, time.UTC)
	var rows []models.Booking
	for id := uint(1); id <= 3; id++ {
		b := models.Booking{StartTime: end.Add(-time.Hour), EndTime: end, Status: models.BookingConfirmed}
		b.ID = id
		rows = append(rows, b)
	}
	store := newMemBookings(rows...)
	store.writeErr[2] = errors.New("deadlock found when trying to get lock")
	s, _ := newScheduler(store, end.Add(time.Hour))

	res := s.RunAutoComplete(context.Background())
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, models.BookingConfirmed, store.get(2).Status)
}

func TestTickReportsCandidateQueryFailure(t *testing.T) {
	store := newMemBookings()
	store.findErr = errors.New("connection refused")
	s, _ := newScheduler(store, time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC))

	res := s.RunAutoConfirm(context.Background())
	assert.Error(t, res.Err)
	assert.Equal(t, 0, res.Candidates)
}

func TestBatchSizeBoundsTick(t *testing.T) {
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	var rows []models.Booking
	for id := uint(1); id <= 5; id++ {
		rows = append(rows, pendingBooking(id, created))
	}
	store := newMemBookings(rows...)
	clk := clock.NewFixed(created.Add(13*time.Hour), time.UTC)
	s := NewTransitionScheduler(store, NewBookingStateMachine(0), clk, 2, nil, quietLogger())

	assert.Equal(t, 2, s.RunAutoConfirm(context.Background()).Applied)
	assert.Equal(t, 2, s.RunAutoConfirm(context.Background()).Applied)
	assert.Equal(t, 1, s.RunAutoConfirm(context.Background()).Applied)
	assert.Len(t, store.events, 5)
}

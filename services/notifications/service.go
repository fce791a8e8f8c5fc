package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"studio_engine/clock"
	"studio_engine/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Queue item structure stored in Redis.
// Keep minimal to reduce payload size; one item fans out to all recipients.
type queuedNotification struct {
	Recipients []Recipient      `json:"recipients"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Type       string           `json:"type"`
	Data       *json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Recipient of an in-app notification.
type Recipient struct {
	UserID   uint   `json:"user_id"`
	UserKind string `json:"user_kind"`
}

const redisListKey = "notifications:queue"

// NotificationWriter persists in-app notification rows.
type NotificationWriter interface {
	CreateNotifications(ctx context.Context, notifs []models.Notification) error
}

// Service writes in-app notifications for engine events, through the Redis
// queue when enabled. If Redis is disabled or unavailable it inserts directly.
type Service struct {
	writer   NotificationWriter
	redis    *redis.Client
	useRedis bool
	clock    clock.Clock
	log      logrus.FieldLogger
}

func NewService(writer NotificationWriter, rdb *redis.Client, useRedis bool, clk clock.Clock, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		writer:   writer,
		redis:    rdb,
		useRedis: useRedis && rdb != nil,
		clock:    clk,
		log:      log,
	}
}

func (s *Service) Name() string { return "in_app" }

// Publish notifies the customer and the teacher of the booking.
func (s *Service) Publish(ctx context.Context, msg Message) error {
	n := queuedNotification{
		Title:   msg.Title,
		Message: msg.Body,
		Type:    "info",
	}
	if len(msg.Payload) > 0 {
		raw := msg.Payload
		n.Data = &raw
	}
	recipients := []Recipient{
		{UserID: msg.CustomerID, UserKind: "customer"},
		{UserID: msg.TeacherID, UserKind: "teacher"},
	}
	return s.EnqueueOrCreate(ctx, recipients, n)
}

// EnqueueOrCreate stores notifications using Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(ctx context.Context, recipients []Recipient, n queuedNotification) error {
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}
	n.Recipients = recipients
	n.CreatedAt = s.clock.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil // queued successfully
		}
		s.log.WithError(err).Warn("notification queue push failed, falling back to direct insert")
	}

	return s.createDirect(ctx, n)
}

// createDirect writes directly to DB (used by worker or fallback).
func (s *Service) createDirect(ctx context.Context, n queuedNotification) error {
	if len(n.Recipients) == 0 {
		return nil
	}
	var data models.JSON
	if n.Data != nil {
		data = models.JSON(*n.Data)
	}
	notifs := make([]models.Notification, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		notif := models.Notification{
			UserID:   r.UserID,
			UserKind: r.UserKind,
			Title:    n.Title,
			Message:  n.Message,
			Type:     n.Type,
			Data:     data,
		}
		notif.CreatedAt = n.CreatedAt
		notifs = append(notifs, notif)
	}
	return s.writer.CreateNotifications(ctx, notifs)
}

// StartWorker starts a background worker polling the Redis queue and flushing to DB.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		s.log.Info("redis notifications disabled; queue worker not started")
		return
	}
	go func() {
		s.log.Info("notification queue worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				s.log.Info("notification queue worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch drains up to five sub-batches from the queue per call.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		// Trim immediately to avoid duplicates (best-effort)
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			s.log.WithError(err).Warn("notification queue trim failed")
		}
		for _, raw := range vals {
			var q queuedNotification
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q); err != nil {
				s.log.WithError(err).Error("notification insert from queue failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

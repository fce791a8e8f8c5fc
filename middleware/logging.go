package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(log logrus.FieldLogger) fiber.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals("request_id", reqID)

		err := c.Next()

		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
		}
		if claims, ok := c.Locals("claims").(*Claims); ok {
			fields["user_id"] = claims.UserID
		}

		entry := log.WithFields(fields)
		switch status := c.Response().StatusCode(); {
		case err != nil || status >= 500:
			entry.WithError(err).Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
		return err
	}
}

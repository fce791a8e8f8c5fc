package controllers

import (
	"errors"

	"studio_engine/repositories"
	"studio_engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, services.ErrUnknownTask):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidPeriod), errors.Is(err, services.ErrUnknownAction):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrBookingChanged),
		errors.Is(err, services.ErrTaskRunning),
		errors.Is(err, services.ErrLockTimeout):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, log logrus.FieldLogger, err error, msg string) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error(msg)
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "details": err.Error()})
}

func orStandard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

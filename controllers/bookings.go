package controllers

import (
	"strconv"

	"studio_engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type BookingController struct {
	actions *services.BookingActions
	log     logrus.FieldLogger
}

func NewBookingController(actions *services.BookingActions, log logrus.FieldLogger) *BookingController {
	return &BookingController{actions: actions, log: orStandard(log)}
}

type bookingActionRequest struct {
	Action services.ManualAction `json:"action"`
	Note   string                `json:"note"`
}

// ApplyAction performs an operator action (approve, reject, cancel, ...) on a booking
func (bc *BookingController) ApplyAction(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid booking ID"})
	}
	var req bookingActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	booking, err := bc.actions.Apply(c.UserContext(), uint(id), req.Action, req.Note)
	if err != nil {
		return respondError(c, bc.log, err, "Booking action failed")
	}
	return c.JSON(fiber.Map{"booking": booking})
}

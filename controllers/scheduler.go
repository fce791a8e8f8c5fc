package controllers

import (
	"studio_engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// SchedulerController lists and manually triggers scheduled tasks.
type SchedulerController struct {
	manager *services.ScheduleManager
	log     logrus.FieldLogger
}

func NewSchedulerController(manager *services.ScheduleManager, log logrus.FieldLogger) *SchedulerController {
	return &SchedulerController{manager: manager, log: orStandard(log)}
}

func (sc *SchedulerController) ListTasks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"started": sc.manager.Started(),
		"tasks":   sc.manager.Tasks(),
	})
}

// RunTask runs a task now, on the same path the timer uses
func (sc *SchedulerController) RunTask(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := sc.manager.RunNow(c.UserContext(), name); err != nil {
		return respondError(c, sc.log, err, "Task run failed")
	}
	sc.log.WithField("task", name).Info("task triggered manually")
	return c.JSON(fiber.Map{"task": name, "status": "completed"})
}

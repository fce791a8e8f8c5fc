package controllers

import (
	"strconv"

	"studio_engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AuditController exposes read-only consistency checks.
type AuditController struct {
	auditor *services.ConsistencyAuditor
	ledger  *services.PackageLedger
	log     logrus.FieldLogger
}

func NewAuditController(auditor *services.ConsistencyAuditor, ledger *services.PackageLedger, log logrus.FieldLogger) *AuditController {
	return &AuditController{auditor: auditor, ledger: ledger, log: orStandard(log)}
}

// DryRun reports every repair the auditor would make without writing
func (ac *AuditController) DryRun(c *fiber.Ctx) error {
	report, err := ac.auditor.Audit(c.UserContext(), services.AuditOptions{Apply: false})
	if err != nil {
		return respondError(c, ac.log, err, "Consistency audit failed")
	}
	return c.JSON(report)
}

// PackageLedger returns the session balance of one package
func (ac *AuditController) PackageLedger(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid package ID"})
	}
	balance, err := ac.ledger.Balance(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, ac.log, err, "Package not found")
	}
	return c.JSON(fiber.Map{
		"ledger":     balance,
		"balanced":   balance.Balanced(),
		"reconciled": balance.Reconciled(),
		"in_flight":  balance.InFlight(),
	})
}

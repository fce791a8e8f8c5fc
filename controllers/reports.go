package controllers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"studio_engine/models"
	"studio_engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportController exposes manual payment report operations.
type ReportController struct {
	generator *services.PaymentReportGenerator
	reports   services.ReportStore
	exporter  *services.ReportExporter
	log       logrus.FieldLogger
}

func NewReportController(gen *services.PaymentReportGenerator, reports services.ReportStore, exporter *services.ReportExporter, log logrus.FieldLogger) *ReportController {
	return &ReportController{generator: gen, reports: reports, exporter: exporter, log: orStandard(log)}
}

type periodRequest struct {
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	ReportType models.ReportType `json:"report_type"`
}

func (r periodRequest) key() models.PeriodKey {
	if r.ReportType == "" {
		r.ReportType = models.ReportMonthly
	}
	return models.PeriodKey{Year: r.Year, Month: r.Month, ReportType: r.ReportType}
}

func keyFromParams(c *fiber.Ctx) (models.PeriodKey, error) {
	year, err := strconv.Atoi(c.Params("year"))
	if err != nil {
		return models.PeriodKey{}, fmt.Errorf("%w: year %q", services.ErrInvalidPeriod, c.Params("year"))
	}
	month, err := strconv.Atoi(c.Params("month"))
	if err != nil {
		return models.PeriodKey{}, fmt.Errorf("%w: month %q", services.ErrInvalidPeriod, c.Params("month"))
	}
	key := models.PeriodKey{Year: year, Month: month, ReportType: models.ReportType(c.Params("type"))}
	return key, services.ValidatePeriod(key)
}

// Generate creates the report for a period unless it already exists
func (rc *ReportController) Generate(c *fiber.Ctx) error {
	return rc.run(c, rc.generator.Generate)
}

// Regenerate replaces the report for a period
func (rc *ReportController) Regenerate(c *fiber.Ctx) error {
	return rc.run(c, rc.generator.Regenerate)
}

func (rc *ReportController) run(c *fiber.Ctx, op func(context.Context, models.PeriodKey, models.GeneratedBy) (*services.GenerateOutcome, error)) error {
	var req periodRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	key := req.key()

	out, err := op(c.UserContext(), key, models.GeneratedManual)
	if err != nil {
		return respondError(c, rc.log, err, "Failed to generate payment report")
	}

	status := fiber.StatusCreated
	if out.Outcome == services.OutcomeSkipped {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(out)
}

// GetReport returns the stored report for a period
func (rc *ReportController) GetReport(c *fiber.Ctx) error {
	key, err := keyFromParams(c)
	if err != nil {
		return respondError(c, rc.log, err, "Invalid period")
	}
	report, err := rc.reports.FindByPeriod(c.UserContext(), key)
	if err != nil {
		return respondError(c, rc.log, err, "Payment report not found")
	}
	return c.JSON(fiber.Map{"report": report})
}

// ExportReport streams the report as an xlsx workbook
func (rc *ReportController) ExportReport(c *fiber.Ctx) error {
	key, err := keyFromParams(c)
	if err != nil {
		return respondError(c, rc.log, err, "Invalid period")
	}
	report, err := rc.reports.FindByPeriod(c.UserContext(), key)
	if err != nil {
		return respondError(c, rc.log, err, "Payment report not found")
	}

	var buf bytes.Buffer
	if err := rc.exporter.WriteXLSX(report, &buf); err != nil {
		return respondError(c, rc.log, err, "Failed to export payment report")
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, services.FileName(key)))
	return c.Send(buf.Bytes())
}

package routes

import (
	"studio_engine/controllers"
	"studio_engine/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles the controllers mounted by SetupRoutes.
type Handlers struct {
	Reports   *controllers.ReportController
	Scheduler *controllers.SchedulerController
	Audit     *controllers.AuditController
	Bookings  *controllers.BookingController
	Health    *controllers.HealthController
	// Metrics is served at /metrics when set.
	Metrics   *prometheus.Registry
	JWTSecret string
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.GetHealthStatus)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{})))
	}

	// Admin API (owner/admin only)
	api := app.Group("/api", middleware.JWTMiddleware(h.JWTSecret), middleware.RequireOwnerOrAdmin())

	reports := api.Group("/reports")
	reports.Post("/generate", h.Reports.Generate)
	reports.Post("/regenerate", h.Reports.Regenerate)
	reports.Get("/:year/:month/:type", h.Reports.GetReport)
	reports.Get("/:year/:month/:type/export", h.Reports.ExportReport)

	scheduler := api.Group("/scheduler")
	scheduler.Get("/tasks", h.Scheduler.ListTasks)
	scheduler.Post("/tasks/:name/run", h.Scheduler.RunTask)

	api.Get("/audit", h.Audit.DryRun)
	api.Get("/packages/:id/ledger", h.Audit.PackageLedger)

	api.Post("/bookings/:id/actions", h.Bookings.ApplyAction)
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio_engine/clock"
	"studio_engine/config"
	"studio_engine/controllers"
	"studio_engine/database"
	"studio_engine/database/seeders"
	"studio_engine/metrics"
	"studio_engine/middleware"
	"studio_engine/repositories"
	"studio_engine/routes"
	"studio_engine/services"
	"studio_engine/services/notifications"
	"studio_engine/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const serviceVersion = "1.0.0"

func main() {
	seed := flag.Bool("seed", false, "seed the rate table and demo data before starting")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	log := config.SetupLogging(cfg)

	loc, err := clock.LoadLocation(cfg.StudioTimezone)
	if err != nil {
		log.WithError(err).Fatal("invalid STUDIO_TIMEZONE")
	}
	clk := clock.New(loc)

	database.Connect()
	defer database.Close()
	if *seed {
		seeders.SeedAll()
	}
	db := database.GetDB()
	rdb := database.GetRedisClient()

	m := metrics.Noop()
	if cfg.MetricsEnabled {
		m = metrics.New("studio_engine")
	}

	bookings := repositories.NewBookingRepository(db)
	packages := repositories.NewPackageRepository(db)
	directory := repositories.NewDirectoryRepository(db)
	reports := repositories.NewReportRepository(db)
	outbox := repositories.NewNotificationRepository(db)

	machine := services.NewBookingStateMachine(cfg.AutoConfirmAfter)
	transitions := services.NewTransitionScheduler(bookings, machine, clk, cfg.BatchSize, m, log.WithField("component", "transitions"))
	generator := services.NewPaymentReportGenerator(bookings, packages, directory, reports, services.NewReportLocker(rdb), clk, m, log.WithField("component", "payment_report"))
	ledger := services.NewPackageLedger(packages, bookings, clk, cfg.BatchSize, m, log.WithField("component", "ledger"))
	auditor := services.NewConsistencyAuditor(directory, packages, bookings, clk, cfg.AuditBaseHour, cfg.BatchSize, m, log.WithField("component", "auditor"))
	actions := services.NewBookingActions(bookings, clk, log.WithField("component", "booking_actions"))

	var objects services.ObjectStore
	if cfg.ReportArchiveEnabled {
		s3, err := storage.NewStorageService(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			log.WithError(err).Fatal("failed to initialise report archive storage")
		}
		objects = s3
	}
	exporter := services.NewReportExporter(reports, reports, objects, clk, log.WithField("component", "report_export"))

	// Notification sinks
	inApp := notifications.NewService(outbox, rdb, cfg.UseRedisNotifications, clk, log.WithField("component", "notifications"))
	publishers := []notifications.Publisher{inApp}
	stopNotif := make(chan struct{})
	if cfg.UseRedisNotifications && rdb != nil {
		inApp.StartWorker(stopNotif)
	}
	var amqpPub *notifications.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPub, err = notifications.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("AMQP sink disabled")
		} else {
			publishers = append(publishers, amqpPub)
		}
	}
	linePub, err := notifications.NewLinePublisher(cfg.LineChannelSecret, cfg.LineChannelToken, cfg.LineOpsGroupID)
	if err != nil {
		log.WithError(err).Warn("LINE sink disabled")
	} else if linePub != nil {
		publishers = append(publishers, linePub)
	}
	dispatcher := notifications.NewDispatcher(outbox, publishers, clk, m, log.WithField("component", "dispatcher"))

	engine := services.Engine{
		Transitions: transitions,
		Reports:     generator,
		Ledger:      ledger,
		Dispatcher:  dispatcher,
	}
	if cfg.ReportArchiveEnabled {
		engine.Exporter = exporter
	}
	scheduler := services.NewScheduleManager(clk, services.NewInitGuard(), m, log.WithField("component", "scheduler"))
	if err := services.RegisterEngineTasks(scheduler, engine, services.TaskSchedules{
		AutoConfirm:          cfg.AutoConfirmSchedule,
		AutoComplete:         cfg.AutoCompleteSchedule,
		MonthlyReport:        cfg.MonthlyReportSchedule,
		ReportArchive:        cfg.ReportArchiveSchedule,
		NotificationDispatch: cfg.DispatchSchedule,
		LedgerCheck:          cfg.LedgerCheckSchedule,
	}); err != nil {
		log.WithError(err).Fatal("failed to register scheduled tasks")
	}
	if cfg.SchedulerEnabled {
		if err := scheduler.Start(); err != nil {
			log.WithError(err).Fatal("failed to start scheduler")
		}
	}

	health := services.NewHealthService(services.HealthOptions{
		Version:           serviceVersion,
		Environment:       cfg.AppEnv,
		DB:                db,
		Redis:             rdb,
		RedisRequired:     cfg.UseRedisNotifications,
		Scheduler:         scheduler,
		SchedulerExpected: cfg.SchedulerEnabled,
		Flags: services.HealthFlags{
			SkipMigrate:           cfg.SkipMigrate,
			UseRedisNotifications: cfg.UseRedisNotifications,
			ReportArchiveEnabled:  cfg.ReportArchiveEnabled,
			SchedulerEnabled:      cfg.SchedulerEnabled,
		},
	})

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(log)})
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggerMiddleware(log.WithField("component", "http")))

	handlers := routes.Handlers{
		Reports:   controllers.NewReportController(generator, reports, exporter, log),
		Scheduler: controllers.NewSchedulerController(scheduler, log),
		Audit:     controllers.NewAuditController(auditor, ledger, log),
		Bookings:  controllers.NewBookingController(actions, log),
		Health:    controllers.NewHealthController(health),
		JWTSecret: cfg.JWTSecret,
	}
	if cfg.MetricsEnabled {
		handlers.Metrics = m.Registry
	}
	routes.SetupRoutes(app, handlers)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.AppEnv,
			"timezone":    loc.String(),
			"publishers":  len(publishers),
		}).Info("studio engine starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	scheduler.Stop()
	close(stopNotif)
	if amqpPub != nil {
		if err := amqpPub.Close(); err != nil {
			log.WithError(err).Warn("closing AMQP connection")
		}
	}
}

// errorHandler handles errors that escape the handlers.
func errorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Path(),
			"method": c.Method(),
			"status": code,
		}).Error("Request error")

		return c.Status(code).JSON(fiber.Map{
			"error": message,
			"code":  code,
		})
	}
}

// Command audit runs the customer and package consistency audit once.
// Without -apply it only reports what it would change.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"studio_engine/clock"
	"studio_engine/config"
	"studio_engine/database"
	"studio_engine/metrics"
	"studio_engine/repositories"
	"studio_engine/services"

	"github.com/sirupsen/logrus"
)

func main() {
	apply := flag.Bool("apply", false, "write the proposed repairs")
	ledger := flag.Bool("ledger", false, "also check every package ledger")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	cfg.SkipMigrate = true
	log := config.SetupLogging(cfg)

	loc, err := clock.LoadLocation(cfg.StudioTimezone)
	if err != nil {
		log.WithError(err).Fatal("invalid STUDIO_TIMEZONE")
	}
	clk := clock.New(loc)

	database.Connect()
	defer database.Close()
	db := database.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookings := repositories.NewBookingRepository(db)
	packages := repositories.NewPackageRepository(db)
	directory := repositories.NewDirectoryRepository(db)
	m := metrics.Noop()

	auditor := services.NewConsistencyAuditor(directory, packages, bookings, clk, cfg.AuditBaseHour, cfg.BatchSize, m, log)
	report, err := auditor.Audit(ctx, services.AuditOptions{Apply: *apply})
	if err != nil {
		log.WithError(err).Fatal("consistency audit failed")
	}

	out := map[string]interface{}{"audit": report}
	if *ledger {
		unbalanced, err := services.NewPackageLedger(packages, bookings, clk, cfg.BatchSize, m, log).CheckAll(ctx)
		if err != nil {
			log.WithError(err).Fatal("ledger check failed")
		}
		out["unbalanced_packages"] = unbalanced
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.WithError(err).Fatal("write report")
	}

	log.WithFields(logrus.Fields{
		"dry_run":  report.DryRun,
		"findings": len(report.Findings),
		"warnings": len(report.Warnings),
	}).Info("consistency audit finished")
}

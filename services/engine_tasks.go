package services

import (
	"context"
	"fmt"

	"studio_engine/services/notifications"
)

// Task names.
const (
	TaskAutoConfirm          = "auto-confirm"
	TaskAutoComplete         = "auto-complete"
	TaskMonthlyReport        = "monthly-report"
	TaskReportArchive        = "report-archive"
	TaskNotificationDispatch = "notification-dispatch"
	TaskLedgerCheck          = "ledger-check"
)

// TaskSchedules holds the cron spec of each engine task. Empty disables the task.
type TaskSchedules struct {
	AutoConfirm          string
	AutoComplete         string
	MonthlyReport        string
	ReportArchive        string
	NotificationDispatch string
	LedgerCheck          string
}

func DefaultTaskSchedules() TaskSchedules {
	return TaskSchedules{
		AutoConfirm:          "@every 5m",
		AutoComplete:         "0 * * * *",
		MonthlyReport:        "0 1 1 * *",
		ReportArchive:        "0 2 1 * *",
		NotificationDispatch: "@every 1m",
		LedgerCheck:          "30 3 * * *",
	}
}

// Engine bundles the components driven by the scheduler. Exporter and
// Dispatcher are optional.
type Engine struct {
	Transitions *TransitionScheduler
	Reports     *PaymentReportGenerator
	Ledger      *PackageLedger
	Exporter    *ReportExporter
	Dispatcher  *notifications.Dispatcher
}

// RegisterEngineTasks registers every configured engine task on sm.
func RegisterEngineTasks(sm *ScheduleManager, e Engine, s TaskSchedules) error {
	type entry struct {
		name string
		spec string
		fn   TaskFunc
	}
	entries := []entry{
		{TaskAutoConfirm, s.AutoConfirm, func(ctx context.Context) error {
			return e.Transitions.RunAutoConfirm(ctx).Err
		}},
		{TaskAutoComplete, s.AutoComplete, func(ctx context.Context) error {
			return e.Transitions.RunAutoComplete(ctx).Err
		}},
		{TaskMonthlyReport, s.MonthlyReport, func(ctx context.Context) error {
			_, err := e.Reports.GeneratePrevious(ctx)
			return err
		}},
		{TaskLedgerCheck, s.LedgerCheck, func(ctx context.Context) error {
			_, err := e.Ledger.CheckAll(ctx)
			return err
		}},
	}
	if e.Exporter != nil {
		entries = append(entries, entry{TaskReportArchive, s.ReportArchive, func(ctx context.Context) error {
			key := e.Reports.PreviousPeriod(e.Reports.clock.Now())
			_, err := e.Exporter.Archive(ctx, key)
			return err
		}})
	}
	if e.Dispatcher != nil {
		entries = append(entries, entry{TaskNotificationDispatch, s.NotificationDispatch, func(ctx context.Context) error {
			_, err := e.Dispatcher.DispatchPending(ctx)
			return err
		}})
	}

	for _, en := range entries {
		if en.spec == "" {
			continue
		}
		if err := sm.Register(en.name, en.spec, en.fn); err != nil {
			return fmt.Errorf("register %s: %w", en.name, err)
		}
	}
	return nil
}

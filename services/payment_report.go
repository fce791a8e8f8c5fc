package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"
	"studio_engine/models"
	"studio_engine/repositories"
	"studio_engine/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrInvalidPeriod = errors.New("report: invalid period")

// DefaultLockWait bounds how long a generate call waits behind a regenerate on the same key.
const DefaultLockWait = 2 * time.Minute

// Outcome of a generate call.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
)

// GenerateOutcome is returned by Generate and Regenerate. Report is the stored
// report for the key when it could be loaded.
type GenerateOutcome struct {
	Outcome Outcome               `json:"outcome"`
	Key     models.PeriodKey      `json:"key"`
	Report  *models.PaymentReport `json:"report,omitempty"`
	Skipped []string              `json:"skipped_records,omitempty"`
}

// ValidatePeriod checks a period key before any I/O.
func ValidatePeriod(key models.PeriodKey) error {
	if key.Year < 2000 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, key.Year)
	}
	if key.Month < 1 || key.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, key.Month)
	}
	if !key.ReportType.Valid() {
		return fmt.Errorf("%w: report type %q", ErrInvalidPeriod, key.ReportType)
	}
	return nil
}

// PaymentReportGenerator produces exactly one PaymentReport per period key.
type PaymentReportGenerator struct {
	bookings  BookingStore
	packages  PackageStore
	directory DirectoryStore
	reports   ReportStore
	locker    Locker
	clock     clock.Clock
	lockWait  time.Duration
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

func NewPaymentReportGenerator(
	bookings BookingStore,
	packages PackageStore,
	directory DirectoryStore,
	reports ReportStore,
	locker Locker,
	clk clock.Clock,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *PaymentReportGenerator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PaymentReportGenerator{
		bookings:  bookings,
		packages:  packages,
		directory: directory,
		reports:   reports,
		locker:    locker,
		clock:     clk,
		lockWait:  DefaultLockWait,
		metrics:   m,
		log:       log,
	}
}

// PreviousPeriod is the monthly key for the month before now's month in the studio timezone.
func (g *PaymentReportGenerator) PreviousPeriod(now time.Time) models.PeriodKey {
	y, m := utils.PreviousMonth(now.In(g.clock.Location()))
	return models.PeriodKey{Year: y, Month: m, ReportType: models.ReportMonthly}
}

// GeneratePrevious is the scheduled entry point: generate last month's monthly report.
func (g *PaymentReportGenerator) GeneratePrevious(ctx context.Context) (*GenerateOutcome, error) {
	return g.Generate(ctx, g.PreviousPeriod(g.clock.Now()), models.GeneratedAuto)
}

// Generate creates the report for key unless one already exists.
func (g *PaymentReportGenerator) Generate(ctx context.Context, key models.PeriodKey, by models.GeneratedBy) (*GenerateOutcome, error) {
	if err := ValidatePeriod(key); err != nil {
		return nil, err
	}
	release, err := g.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	return g.generate(ctx, key, by)
}

// Regenerate rebuilds the report for key and swaps it for the stored one in a
// single write, holding the key lock so a concurrent Generate cannot interleave.
// The stored report is untouched unless the new one is written.
func (g *PaymentReportGenerator) Regenerate(ctx context.Context, key models.PeriodKey, by models.GeneratedBy) (*GenerateOutcome, error) {
	if err := ValidatePeriod(key); err != nil {
		return nil, err
	}
	release, err := g.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	log := g.log.WithFields(logrus.Fields{"year": key.Year, "month": key.Month, "report_type": key.ReportType})
	built, err := g.build(ctx, key, by, log)
	if err != nil {
		return nil, err
	}

	replaced, err := g.reports.Replace(ctx, built.report, built.bonusIDs, built.expenseIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicatePeriod) {
			log.Info("payment report created concurrently, skipped")
			return g.skipped(ctx, key), nil
		}
		g.metrics.Reports.WithLabelValues("error").Inc()
		log.WithError(err).Error("payment report replace failed, previous report kept")
		return nil, err
	}
	if replaced {
		log.Info("previous payment report replaced")
	}
	return g.created(key, built, log), nil
}

func (g *PaymentReportGenerator) lock(ctx context.Context, key models.PeriodKey) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, g.lockWait)
	defer cancel()
	release, err := g.locker.Acquire(lockCtx, key.String())
	if err != nil {
		g.log.WithError(err).WithField("period", key.String()).Error("could not acquire payment report lock")
		return nil, err
	}
	return release, nil
}

// builtReport is an assembled report with the bonus and expense rows it incorporates.
type builtReport struct {
	report     *models.PaymentReport
	bonusIDs   []uint
	expenseIDs []uint
	skipped    []string
}

// reportInputs is everything read before assembly. Nothing is written until all of it is loaded.
type reportInputs struct {
	bookings   []models.Booking
	linked     map[uint]*models.Package
	sold       []models.Package
	teachers   []models.Teacher
	rates      RateTable
	bonuses    []models.Bonus
	expenses   []models.Expense
	start, end time.Time
}

func (g *PaymentReportGenerator) generate(ctx context.Context, key models.PeriodKey, by models.GeneratedBy) (*GenerateOutcome, error) {
	log := g.log.WithFields(logrus.Fields{"year": key.Year, "month": key.Month, "report_type": key.ReportType})

	exists, err := g.reports.ExistsForPeriod(ctx, key)
	if err != nil {
		g.metrics.Reports.WithLabelValues("error").Inc()
		log.WithError(err).Error("payment report existence check failed")
		return nil, err
	}
	if exists {
		log.Info("payment report already exists, skipped")
		return g.skipped(ctx, key), nil
	}

	built, err := g.build(ctx, key, by, log)
	if err != nil {
		return nil, err
	}

	if err := g.reports.Create(ctx, built.report, built.bonusIDs, built.expenseIDs); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePeriod) {
			log.Info("payment report created concurrently, skipped")
			return g.skipped(ctx, key), nil
		}
		g.metrics.Reports.WithLabelValues("error").Inc()
		log.WithError(err).Error("payment report persist failed")
		return nil, err
	}
	return g.created(key, built, log), nil
}

// build gathers every input and assembles the report without writing anything.
func (g *PaymentReportGenerator) build(ctx context.Context, key models.PeriodKey, by models.GeneratedBy, log logrus.FieldLogger) (*builtReport, error) {
	in, err := g.gather(ctx, key)
	if err != nil {
		g.metrics.Reports.WithLabelValues("error").Inc()
		log.WithError(err).Error("payment report aborted while gathering inputs")
		return nil, err
	}
	built, err := g.assemble(key, in, by, log)
	if err != nil {
		g.metrics.Reports.WithLabelValues("error").Inc()
		log.WithError(err).Error("payment report aborted while computing commissions")
		return nil, err
	}
	return built, nil
}

func (g *PaymentReportGenerator) created(key models.PeriodKey, built *builtReport, log logrus.FieldLogger) *GenerateOutcome {
	report := built.report
	g.metrics.Reports.WithLabelValues(string(OutcomeCreated)).Inc()
	log.WithFields(logrus.Fields{
		"report_id":       report.ID,
		"teachers":        len(report.TeacherPayments),
		"total_revenue":   report.TotalRevenue.String(),
		"profit_loss":     report.ProfitLoss.String(),
		"skipped_records": len(built.skipped),
	}).Info("payment report created")
	return &GenerateOutcome{Outcome: OutcomeCreated, Key: key, Report: report, Skipped: built.skipped}
}

func (g *PaymentReportGenerator) skipped(ctx context.Context, key models.PeriodKey) *GenerateOutcome {
	g.metrics.Reports.WithLabelValues(string(OutcomeSkipped)).Inc()
	out := &GenerateOutcome{Outcome: OutcomeSkipped, Key: key}
	if existing, err := g.reports.FindByPeriod(ctx, key); err == nil {
		out.Report = existing
	}
	return out
}

func (g *PaymentReportGenerator) gather(ctx context.Context, key models.PeriodKey) (*reportInputs, error) {
	in := &reportInputs{}
	in.start, in.end = utils.MonthBounds(key.Year, key.Month)

	var err error
	if in.bookings, err = g.bookings.FindCompletedBetween(ctx, in.start, in.end); err != nil {
		return nil, err
	}
	if in.sold, err = g.packages.FindCreatedBetween(ctx, in.start, in.end); err != nil {
		return nil, err
	}
	if in.teachers, err = g.directory.ListTeachers(ctx); err != nil {
		return nil, err
	}
	rates, err := g.directory.ListCommissionRates(ctx)
	if err != nil {
		return nil, err
	}
	in.rates = NewRateTable(rates)
	if in.bonuses, err = g.directory.BonusesFor(ctx, key.Year, key.Month); err != nil {
		return nil, err
	}
	if in.expenses, err = g.directory.ExpensesFor(ctx, key.Year, key.Month); err != nil {
		return nil, err
	}

	var pkgIDs []uint
	seen := make(map[uint]bool)
	for _, b := range in.bookings {
		if b.PackageID != nil && !seen[*b.PackageID] {
			seen[*b.PackageID] = true
			pkgIDs = append(pkgIDs, *b.PackageID)
		}
	}
	in.linked = make(map[uint]*models.Package, len(pkgIDs))
	if len(pkgIDs) > 0 {
		pkgs, err := g.packages.FindByIDs(ctx, pkgIDs)
		if err != nil {
			return nil, err
		}
		for i := range pkgs {
			in.linked[pkgs[i].ID] = &pkgs[i]
		}
	}
	return in, nil
}

func (g *PaymentReportGenerator) assemble(key models.PeriodKey, in *reportInputs, by models.GeneratedBy, log logrus.FieldLogger) (*builtReport, error) {
	teachers := make(map[uint]*models.Teacher, len(in.teachers))
	for i := range in.teachers {
		teachers[in.teachers[i].ID] = &in.teachers[i]
	}

	var skippedRecords []string
	sessions := make(map[uint][]SessionRecord)
	for _, b := range in.bookings {
		if _, ok := teachers[b.TeacherID]; !ok {
			log.WithFields(logrus.Fields{"booking_id": b.ID, "teacher_id": b.TeacherID}).Warn("completed booking references unknown teacher, skipped")
			skippedRecords = append(skippedRecords, fmt.Sprintf("booking %d: unknown teacher %d", b.ID, b.TeacherID))
			continue
		}
		st := b.SessionType
		if b.PackageID != nil {
			pkg, ok := in.linked[*b.PackageID]
			if !ok {
				log.WithFields(logrus.Fields{"booking_id": b.ID, "package_id": *b.PackageID}).Warn("completed booking references unknown package, skipped")
				skippedRecords = append(skippedRecords, fmt.Sprintf("booking %d: unknown package %d", b.ID, *b.PackageID))
				continue
			}
			st = pkg.SessionType
		}
		if !st.Valid() {
			log.WithFields(logrus.Fields{"booking_id": b.ID, "session_type": st}).Warn("completed booking has no session type, skipped")
			skippedRecords = append(skippedRecords, fmt.Sprintf("booking %d: no session type", b.ID))
			continue
		}
		sessions[b.TeacherID] = append(sessions[b.TeacherID], SessionRecord{BookingID: b.ID, SessionType: st})
	}

	bonusByTeacher := make(map[uint]decimal.Decimal)
	bonusIDsByTeacher := make(map[uint][]uint)
	for _, bonus := range in.bonuses {
		if _, ok := teachers[bonus.TeacherID]; !ok {
			log.WithFields(logrus.Fields{"bonus_id": bonus.ID, "teacher_id": bonus.TeacherID}).Warn("bonus references unknown teacher, skipped")
			skippedRecords = append(skippedRecords, fmt.Sprintf("bonus %d: unknown teacher %d", bonus.ID, bonus.TeacherID))
			continue
		}
		bonusByTeacher[bonus.TeacherID] = bonusByTeacher[bonus.TeacherID].Add(bonus.Amount)
		bonusIDsByTeacher[bonus.TeacherID] = append(bonusIDsByTeacher[bonus.TeacherID], bonus.ID)
	}

	report := &models.PaymentReport{
		Year:                 key.Year,
		Month:                key.Month,
		ReportType:           key.ReportType,
		StartDate:            in.start,
		EndDate:              in.end,
		TotalRevenue:         decimal.Zero,
		TotalTeacherPayments: decimal.Zero,
		TotalExpenses:        decimal.Zero,
		GeneratedAt:          g.clock.Now().UTC(),
		GeneratedBy:          by,
	}

	var bonusIDs []uint
	// in.teachers is ordered by ID, which fixes the payment line order.
	for i := range in.teachers {
		t := &in.teachers[i]
		recs := sessions[t.ID]
		bonus, hasBonus := bonusByTeacher[t.ID]
		if !t.Active && len(recs) == 0 && !hasBonus {
			continue
		}
		breakdown, err := Calculate(t, recs, in.rates)
		if errors.Is(err, ErrRateNotFound) {
			log.WithError(err).WithField("teacher_id", t.ID).Warn("teacher has sessions without a commission rate, payment line skipped")
			skippedRecords = append(skippedRecords, fmt.Sprintf("teacher %d: %v", t.ID, err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("teacher %d: %w", t.ID, err)
		}
		bonusIDs = append(bonusIDs, bonusIDsByTeacher[t.ID]...)
		line := teacherPaymentLine(t, breakdown, bonus)
		line.Position = len(report.TeacherPayments) + 1
		report.TeacherPayments = append(report.TeacherPayments, line)
		report.TotalTeacherPayments = report.TotalTeacherPayments.Add(line.Total)
	}

	snapshots := make([]models.PackageSnapshot, 0, len(in.sold))
	for _, p := range in.sold {
		report.TotalRevenue = report.TotalRevenue.Add(p.Price)
		snapshots = append(snapshots, models.PackageSnapshot{
			PackageID:     p.ID,
			CustomerID:    p.CustomerID,
			Name:          p.Name,
			SessionType:   p.SessionType,
			TotalSessions: p.TotalSessions,
			Price:         p.Price,
			SoldAt:        p.CreatedAt.UTC(),
		})
	}
	packagesSold, err := models.MarshalJSONColumn(snapshots)
	if err != nil {
		return nil, err
	}
	report.PackagesSold = packagesSold

	expenseIDs := make([]uint, 0, len(in.expenses))
	for _, e := range in.expenses {
		report.TotalExpenses = report.TotalExpenses.Add(e.Amount)
		expenseIDs = append(expenseIDs, e.ID)
	}

	report.TotalCosts = report.TotalTeacherPayments.Add(report.TotalExpenses)
	report.ProfitLoss = report.TotalRevenue.Sub(report.TotalCosts)
	return &builtReport{report: report, bonusIDs: bonusIDs, expenseIDs: expenseIDs, skipped: skippedRecords}, nil
}

func teacherPaymentLine(t *models.Teacher, b CommissionBreakdown, bonus decimal.Decimal) models.TeacherPayment {
	private := b.For(models.SessionPrivate)
	duo := b.For(models.SessionDuo)
	group := b.For(models.SessionGroup)
	return models.TeacherPayment{
		TeacherID:         t.ID,
		TeacherName:       t.Name,
		TeacherType:       t.TeacherType,
		PrivateSessions:   private.Count,
		PrivateCommission: private.Commission,
		DuoSessions:       duo.Count,
		DuoCommission:     duo.Commission,
		GroupSessions:     group.Count,
		GroupCommission:   group.Commission,
		TotalCommission:   b.TotalCommission,
		BaseSalary:        b.BaseSalary,
		Bonuses:           bonus,
		Total:             b.TotalPayment.Add(bonus),
	}
}

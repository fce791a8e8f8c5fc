package services

import (
	"context"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"
	"studio_engine/models"

	"github.com/sirupsen/logrus"
)

// LedgerBalance partitions the bookings referencing one package.
type LedgerBalance struct {
	PackageID             uint                 `json:"package_id"`
	TotalSessions         int                  `json:"total_sessions"`
	RemainingSessions     int                  `json:"remaining_sessions"`
	Completed             int                  `json:"completed"`
	NoShow                int                  `json:"no_show"`
	PastConfirmed         int                  `json:"past_confirmed"`
	FutureConfirmed       int                  `json:"future_confirmed"`
	Cancelled             int                  `json:"cancelled"`
	Pending               int                  `json:"pending"`
	CancellationRequested int                  `json:"cancellation_requested"`
	EffectiveStatus       models.PackageStatus `json:"effective_status"`
}

// Accounted is the right-hand side of the reconciliation law.
func (l LedgerBalance) Accounted() int {
	return l.RemainingSessions + l.Completed + l.NoShow + l.PastConfirmed + l.FutureConfirmed + l.Cancelled
}

// Balanced reports whether total == remaining + completed + noShow + pastConfirmed + futureConfirmed + cancelled.
// It can only hold while no booking of the package is in flight.
func (l LedgerBalance) Balanced() bool {
	return l.TotalSessions == l.Accounted()
}

// InFlight counts bookings awaiting a decision. Their session was taken from
// remaining at booking time but they are not yet in any accounted partition.
func (l LedgerBalance) InFlight() int {
	return l.Pending + l.CancellationRequested
}

// Reconciled is Balanced with in-flight bookings counted, the law that holds at
// every point of a booking's life.
func (l LedgerBalance) Reconciled() bool {
	return l.TotalSessions == l.Accounted()+l.InFlight()
}

// Consumed counts sessions that have been used (attended or forfeited).
func (l LedgerBalance) Consumed() int {
	return l.Completed + l.NoShow + l.PastConfirmed
}

// Reconcile computes the ledger balance of pkg at now from the bookings that reference it.
// Bookings for other packages are ignored.
func Reconcile(pkg *models.Package, bookings []models.Booking, now time.Time) LedgerBalance {
	l := LedgerBalance{
		PackageID:         pkg.ID,
		TotalSessions:     pkg.TotalSessions,
		RemainingSessions: pkg.RemainingSessions,
		EffectiveStatus:   pkg.EffectiveStatus(now),
	}
	for i := range bookings {
		b := &bookings[i]
		if b.PackageID == nil || *b.PackageID != pkg.ID {
			continue
		}
		switch b.Status {
		case models.BookingCompleted:
			l.Completed++
		case models.BookingNoShow:
			l.NoShow++
		case models.BookingConfirmed:
			if b.EndTime.Before(now) {
				l.PastConfirmed++
			} else {
				l.FutureConfirmed++
			}
		case models.BookingCancelled:
			l.Cancelled++
		case models.BookingPending:
			l.Pending++
		case models.BookingCancellationRequested:
			l.CancellationRequested++
		}
	}
	return l
}

// PackageLedger cross-checks package counters against booking history. Read-only.
type PackageLedger struct {
	packages PackageStore
	bookings BookingStore
	clock    clock.Clock
	pageSize int
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewPackageLedger(packages PackageStore, bookings BookingStore, clk clock.Clock, pageSize int, m *metrics.Metrics, log logrus.FieldLogger) *PackageLedger {
	if pageSize <= 0 {
		pageSize = DefaultBatchSize
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PackageLedger{packages: packages, bookings: bookings, clock: clk, pageSize: pageSize, metrics: m, log: log}
}

// Balance returns the ledger balance of one package.
func (p *PackageLedger) Balance(ctx context.Context, packageID uint) (LedgerBalance, error) {
	pkg, err := p.packages.GetByID(ctx, packageID)
	if err != nil {
		return LedgerBalance{}, err
	}
	bookings, err := p.bookings.FindByPackageIDs(ctx, []uint{packageID})
	if err != nil {
		return LedgerBalance{}, err
	}
	return Reconcile(pkg, bookings, p.clock.Now()), nil
}

// CheckAll walks every package and returns those whose counters do not reconcile.
// Violations are logged as warnings; nothing is written.
func (p *PackageLedger) CheckAll(ctx context.Context) ([]LedgerBalance, error) {
	now := p.clock.Now()
	var unbalanced []LedgerBalance
	var afterID uint
	checked := 0

	for {
		pkgs, err := p.packages.ListAfter(ctx, afterID, p.pageSize)
		if err != nil {
			return unbalanced, err
		}
		if len(pkgs) == 0 {
			break
		}

		ids := make([]uint, len(pkgs))
		for i := range pkgs {
			ids[i] = pkgs[i].ID
		}
		bookings, err := p.bookings.FindByPackageIDs(ctx, ids)
		if err != nil {
			return unbalanced, err
		}

		for i := range pkgs {
			bal := Reconcile(&pkgs[i], bookings, now)
			checked++
			if bal.Reconciled() {
				continue
			}
			unbalanced = append(unbalanced, bal)
			p.metrics.AuditFindings.WithLabelValues("ledger_unbalanced").Inc()
			p.log.WithFields(logrus.Fields{
				"package_id":         bal.PackageID,
				"total_sessions":     bal.TotalSessions,
				"accounted_sessions": bal.Accounted(),
				"in_flight":          bal.InFlight(),
				"remaining_sessions": bal.RemainingSessions,
			}).Warn("package ledger does not reconcile")
		}

		afterID = pkgs[len(pkgs)-1].ID
		if len(pkgs) < p.pageSize {
			break
		}
	}

	p.log.WithFields(logrus.Fields{"checked": checked, "unbalanced": len(unbalanced)}).Info("package ledger check finished")
	return unbalanced, nil
}

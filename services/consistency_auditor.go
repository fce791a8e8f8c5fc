package services

import (
	"context"
	"time"

	"studio_engine/clock"
	"studio_engine/metrics"
	"studio_engine/models"
	"studio_engine/utils"

	"github.com/sirupsen/logrus"
)

// DefaultAuditTolerance is the drift accepted on validTo before it is rewritten.
const DefaultAuditTolerance = 24 * time.Hour

// FindingKind classifies one auditor observation.
type FindingKind string

const (
	FindingNoSessions        FindingKind = "no_sessions"
	FindingCustomerCreatedAt FindingKind = "customer_created_at"
	FindingPackageValidFrom  FindingKind = "package_valid_from"
	FindingPackageValidTo    FindingKind = "package_valid_to"
)

// AuditFinding is one inconsistency and the repair proposed for it.
type AuditFinding struct {
	Kind       FindingKind `json:"kind"`
	CustomerID uint        `json:"customer_id"`
	PackageID  uint        `json:"package_id,omitempty"`
	Current    time.Time   `json:"current"`
	Proposed   time.Time   `json:"proposed"`
	Applied    bool        `json:"applied"`
}

// AuditWarning marks a customer that needs manual attention.
type AuditWarning struct {
	Kind       FindingKind `json:"kind"`
	CustomerID uint        `json:"customer_id"`
	Message    string      `json:"message"`
}

type AuditOptions struct {
	Apply bool
}

type AuditReport struct {
	DryRun           bool           `json:"dry_run"`
	CustomersScanned int            `json:"customers_scanned"`
	PackagesScanned  int            `json:"packages_scanned"`
	Findings         []AuditFinding `json:"findings"`
	Warnings         []AuditWarning `json:"warnings"`
}

// ConsistencyAuditor restores the account <= package <= session ordering of
// historical records. It is an offline maintenance tool.
type ConsistencyAuditor struct {
	directory DirectoryStore
	packages  PackageStore
	bookings  BookingStore
	clock     clock.Clock
	baseHour  int
	tolerance time.Duration
	pageSize  int
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

func NewConsistencyAuditor(directory DirectoryStore, packages PackageStore, bookings BookingStore, clk clock.Clock, baseHour, pageSize int, m *metrics.Metrics, log logrus.FieldLogger) *ConsistencyAuditor {
	if pageSize <= 0 {
		pageSize = DefaultBatchSize
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ConsistencyAuditor{
		directory: directory,
		packages:  packages,
		bookings:  bookings,
		clock:     clk,
		baseHour:  baseHour,
		tolerance: DefaultAuditTolerance,
		pageSize:  pageSize,
		metrics:   m,
		log:       log,
	}
}

// Audit scans every customer. With opts.Apply false nothing is written.
func (a *ConsistencyAuditor) Audit(ctx context.Context, opts AuditOptions) (*AuditReport, error) {
	report := &AuditReport{DryRun: !opts.Apply, Findings: []AuditFinding{}, Warnings: []AuditWarning{}}
	var afterID uint

	for {
		customers, err := a.directory.ListCustomersAfter(ctx, afterID, a.pageSize)
		if err != nil {
			return report, err
		}
		if len(customers) == 0 {
			break
		}

		ids := make([]uint, len(customers))
		for i := range customers {
			ids[i] = customers[i].ID
		}
		pkgs, err := a.packages.FindByCustomerIDs(ctx, ids)
		if err != nil {
			return report, err
		}
		bookings, err := a.bookings.FindByCustomerIDs(ctx, ids)
		if err != nil {
			return report, err
		}

		pkgsByCustomer := make(map[uint][]models.Package)
		for _, p := range pkgs {
			pkgsByCustomer[p.CustomerID] = append(pkgsByCustomer[p.CustomerID], p)
		}
		bookingsByCustomer := make(map[uint][]models.Booking)
		for _, b := range bookings {
			bookingsByCustomer[b.CustomerID] = append(bookingsByCustomer[b.CustomerID], b)
		}

		for i := range customers {
			c := &customers[i]
			report.CustomersScanned++
			report.PackagesScanned += len(pkgsByCustomer[c.ID])
			if err := a.auditCustomer(ctx, c, pkgsByCustomer[c.ID], bookingsByCustomer[c.ID], opts, report); err != nil {
				return report, err
			}
		}

		afterID = customers[len(customers)-1].ID
		if len(customers) < a.pageSize {
			break
		}
	}

	a.log.WithFields(logrus.Fields{
		"dry_run":   report.DryRun,
		"customers": report.CustomersScanned,
		"packages":  report.PackagesScanned,
		"findings":  len(report.Findings),
		"warnings":  len(report.Warnings),
	}).Info("consistency audit finished")
	return report, nil
}

func (a *ConsistencyAuditor) auditCustomer(ctx context.Context, c *models.Customer, pkgs []models.Package, bookings []models.Booking, opts AuditOptions, report *AuditReport) error {
	log := a.log.WithField("customer_id", c.ID)

	earliest, ok := earliestStart(bookings, func(*models.Booking) bool { return true })
	if !ok {
		report.Warnings = append(report.Warnings, AuditWarning{
			Kind:       FindingNoSessions,
			CustomerID: c.ID,
			Message:    "customer has no sessions, ordering cannot be established",
		})
		a.metrics.AuditFindings.WithLabelValues(string(FindingNoSessions)).Inc()
		log.Warn("customer has no sessions, ordering cannot be established")
		return nil
	}
	accountBound := a.floor(earliest)

	for i := range pkgs {
		p := &pkgs[i]
		from, to := p.ValidFrom, p.ValidTo

		first, ok := earliestStart(bookings, func(b *models.Booking) bool {
			return b.PackageID != nil && *b.PackageID == p.ID
		})
		if ok && from.After(first) {
			proposed := a.floor(first)
			report.Findings = append(report.Findings, AuditFinding{
				Kind: FindingPackageValidFrom, CustomerID: c.ID, PackageID: p.ID, Current: from, Proposed: proposed, Applied: opts.Apply,
			})
			a.metrics.AuditFindings.WithLabelValues(string(FindingPackageValidFrom)).Inc()
			from = proposed
		}

		policyTo := from.AddDate(0, models.PackageValidityMonths, 0)
		if utils.AbsDuration(to.Sub(policyTo)) > a.tolerance {
			report.Findings = append(report.Findings, AuditFinding{
				Kind: FindingPackageValidTo, CustomerID: c.ID, PackageID: p.ID, Current: to, Proposed: policyTo, Applied: opts.Apply,
			})
			a.metrics.AuditFindings.WithLabelValues(string(FindingPackageValidTo)).Inc()
			to = policyTo
		} else if !from.Equal(p.ValidFrom) {
			to = policyTo
		}

		if opts.Apply && (!from.Equal(p.ValidFrom) || !to.Equal(p.ValidTo)) {
			if err := a.packages.UpdateValidity(ctx, p.ID, from, to); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"package_id": p.ID, "valid_from": from, "valid_to": to}).Info("package validity repaired")
		}

		if from.Before(accountBound) {
			accountBound = from
		}
	}

	if c.CreatedAt.After(accountBound) {
		report.Findings = append(report.Findings, AuditFinding{
			Kind: FindingCustomerCreatedAt, CustomerID: c.ID, Current: c.CreatedAt, Proposed: accountBound, Applied: opts.Apply,
		})
		a.metrics.AuditFindings.WithLabelValues(string(FindingCustomerCreatedAt)).Inc()
		if opts.Apply {
			if err := a.directory.UpdateCustomerCreatedAt(ctx, c.ID, accountBound); err != nil {
				return err
			}
			log.WithField("created_at", accountBound).Info("customer creation time repaired")
		}
	}
	return nil
}

func (a *ConsistencyAuditor) floor(t time.Time) time.Time {
	return utils.FloorToHour(t, a.baseHour, a.clock.Location())
}

func earliestStart(bookings []models.Booking, keep func(*models.Booking) bool) (time.Time, bool) {
	var earliest time.Time
	found := false
	for i := range bookings {
		b := &bookings[i]
		if !keep(b) {
			continue
		}
		if !found || b.StartTime.Before(earliest) {
			earliest, found = b.StartTime, true
		}
	}
	return earliest, found
}

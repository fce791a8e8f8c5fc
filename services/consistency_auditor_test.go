package services

import (
	"context"
	"testing"
	"time"

	"studio_engine/clock"
	"studio_engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ict = time.FixedZone("ICT", 7*3600)

type auditFixture struct {
	directory *memDirectory
	packages  *memPackages
	bookings  *memBookings
	auditor   *ConsistencyAuditor
}

func newAuditFixture(customers []models.Customer, pkgs []models.Package, bookings []models.Booking) *auditFixture {
	f := &auditFixture{
		directory: newMemDirectory(),
		packages:  newMemPackages(pkgs...),
		bookings:  newMemBookings(bookings...),
	}
	for i := range customers {
		c := customers[i]
		f.directory.customers[c.ID] = &c
	}
	clk := clock.NewFixed(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), ict)
	f.auditor = NewConsistencyAuditor(f.directory, f.packages, f.bookings, clk, 0, 2, nil, quietLogger())
	return f
}

func customerAt(id uint, created time.Time) models.Customer {
	c := models.Customer{Name: "c"}
	c.ID = id
	c.CreatedAt = created
	return c
}

func packageFor(id, customerID uint, from time.Time) models.Package {
	p := models.Package{CustomerID: customerID, SessionType: models.SessionPrivate, TotalSessions: 10, RemainingSessions: 10, ValidFrom: from, ValidTo: from.AddDate(1, 0, 0)}
	p.ID = id
	p.CreatedAt = from
	return p
}

func sessionFor(id, customerID uint, pkgID *uint, start time.Time) models.Booking {
	b := models.Booking{CustomerID: customerID, PackageID: pkgID, StartTime: start, EndTime: start.Add(time.Hour), Status: models.BookingConfirmed}
	b.ID = id
	return b
}

func TestAuditRepairsOrdering(t *testing.T) {
	session := time.Date(2025, 3, 10, 9, 30, 0, 0, ict)
	f := newAuditFixture(
		[]models.Customer{customerAt(1, time.Date(2025, 4, 1, 0, 0, 0, 0, ict))},
		[]models.Package{packageFor(1, 1, time.Date(2025, 3, 20, 0, 0, 0, 0, ict))},
		[]models.Booking{sessionFor(1, 1, uintPtr(1), session)},
	)

	dry, err := f.auditor.Audit(context.Background(), AuditOptions{})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	require.Len(t, dry.Findings, 3)
	assert.True(t, f.packages.rows[1].ValidFrom.Equal(time.Date(2025, 3, 20, 0, 0, 0, 0, ict)), "dry run writes nothing")

	applied, err := f.auditor.Audit(context.Background(), AuditOptions{Apply: true})
	require.NoError(t, err)
	require.Len(t, applied.Findings, 3)

	floor := time.Date(2025, 3, 10, 0, 0, 0, 0, ict)
	pkg := f.packages.rows[1]
	assert.True(t, pkg.ValidFrom.Equal(floor))
	assert.True(t, pkg.ValidTo.Equal(floor.AddDate(0, 12, 0)))

	cust := f.directory.customers[1]
	assert.False(t, cust.CreatedAt.After(pkg.ValidFrom))
	assert.False(t, pkg.ValidFrom.After(session))

	again, err := f.auditor.Audit(context.Background(), AuditOptions{Apply: true})
	require.NoError(t, err)
	assert.Empty(t, again.Findings, "audit is idempotent once consistent")
}

func TestAuditLeavesConsistentRecordsAlone(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, ict)
	pkg := packageFor(1, 1, from)
	pkg.ValidTo = pkg.ValidTo.Add(6 * time.Hour)
	f := newAuditFixture(
		[]models.Customer{customerAt(1, from.Add(-time.Hour))},
		[]models.Package{pkg},
		[]models.Booking{sessionFor(1, 1, uintPtr(1), from.AddDate(0, 0, 3))},
	)

	report, err := f.auditor.Audit(context.Background(), AuditOptions{Apply: true})
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
	assert.True(t, f.packages.rows[1].ValidTo.Equal(pkg.ValidTo), "drift inside the tolerance window is kept")
}

func TestAuditWarnsOnCustomerWithoutSessions(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, ict)
	f := newAuditFixture(
		[]models.Customer{customerAt(1, created), customerAt(2, created), customerAt(3, created)},
		[]models.Package{packageFor(1, 2, created.AddDate(0, -1, 0))},
		[]models.Booking{sessionFor(1, 3, nil, created.AddDate(0, 0, 1))},
	)

	report, err := f.auditor.Audit(context.Background(), AuditOptions{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.CustomersScanned)
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, uint(1), report.Warnings[0].CustomerID)
	assert.Equal(t, uint(2), report.Warnings[1].CustomerID)
	assert.Empty(t, report.Findings)
	assert.True(t, f.directory.customers[2].CreatedAt.Equal(created), "never repaired without sessions")
}

func TestAuditUsesPreviousDayWhenBaseHourIsLater(t *testing.T) {
	session := time.Date(2025, 5, 2, 7, 0, 0, 0, ict)
	f := newAuditFixture(
		[]models.Customer{customerAt(1, time.Date(2025, 5, 3, 0, 0, 0, 0, ict))},
		nil,
		[]models.Booking{sessionFor(1, 1, nil, session)},
	)
	f.auditor.baseHour = 8

	report, err := f.auditor.Audit(context.Background(), AuditOptions{Apply: true})
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, FindingCustomerCreatedAt, report.Findings[0].Kind)
	assert.True(t, f.directory.customers[1].CreatedAt.Equal(time.Date(2025, 5, 1, 8, 0, 0, 0, ict)))
}

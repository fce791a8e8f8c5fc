package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"studio_engine/models"
	"studio_engine/repositories"
)

// memBookings is an in-memory BookingStore with the same conditional-write
// semantics as the gorm repository.
type memBookings struct {
	mu     sync.Mutex
	rows   map[uint]*models.Booking
	events []models.NotificationEvent

	findErr  error
	writeErr map[uint]error
	// beforeWrite runs before a conditional write, outside the lock, to let
	// tests interleave a competing writer.
	beforeWrite func(id uint)
}

func newMemBookings(rows ...models.Booking) *memBookings {
	s := &memBookings{rows: make(map[uint]*models.Booking), writeErr: make(map[uint]error)}
	for i := range rows {
		b := rows[i]
		s.rows[b.ID] = &b
	}
	return s
}

func (s *memBookings) get(id uint) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memBookings) sorted(keep func(*models.Booking) bool) []models.Booking {
	var out []models.Booking
	for _, b := range s.rows {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func limitBookings(in []models.Booking, limit int) []models.Booking {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func (s *memBookings) GetByID(_ context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memBookings) FindAutoConfirmCandidates(_ context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return limitBookings(s.sorted(func(b *models.Booking) bool {
		return b.Status == models.BookingPending && !b.AutoConfirmed && !b.CreatedAt.After(cutoff)
	}), limit), nil
}

func (s *memBookings) FindAutoCompleteCandidates(_ context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return limitBookings(s.sorted(func(b *models.Booking) bool {
		return b.Status == models.BookingConfirmed && b.EndTime.Before(cutoff)
	}), limit), nil
}

func (s *memBookings) TransitionStatus(_ context.Context, change repositories.StatusChange) (bool, error) {
	if s.beforeWrite != nil {
		s.beforeWrite(change.BookingID)
	}
	if err := s.writeErr[change.BookingID]; err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[change.BookingID]
	if !ok || b.Status != change.From {
		return false, nil
	}
	b.Status = change.To
	if change.AttendanceMarkedAt != nil {
		at := *change.AttendanceMarkedAt
		b.AttendanceMarkedAt = &at
	}
	if change.Notes != nil {
		b.Notes = *change.Notes
	}
	return true, nil
}

func (s *memBookings) AutoConfirm(_ context.Context, bookingID uint, event *models.NotificationEvent) (bool, error) {
	if s.beforeWrite != nil {
		s.beforeWrite(bookingID)
	}
	if err := s.writeErr[bookingID]; err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[bookingID]
	if !ok || b.Status != models.BookingPending || b.AutoConfirmed {
		return false, nil
	}
	b.Status = models.BookingConfirmed
	b.AutoConfirmed = true
	for _, e := range s.events {
		if e.BookingID == bookingID && e.Kind == event.Kind {
			return true, nil
		}
	}
	ev := *event
	ev.ID = uint(len(s.events) + 1)
	s.events = append(s.events, ev)
	return true, nil
}

func (s *memBookings) FindCompletedBetween(_ context.Context, start, end time.Time) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(b *models.Booking) bool {
		return b.Status == models.BookingCompleted && !b.StartTime.Before(start) && !b.StartTime.After(end)
	}), nil
}

func (s *memBookings) FindByPackageIDs(_ context.Context, packageIDs []uint) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	want := make(map[uint]bool, len(packageIDs))
	for _, id := range packageIDs {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(b *models.Booking) bool { return b.PackageID != nil && want[*b.PackageID] }), nil
}

func (s *memBookings) FindByCustomerIDs(_ context.Context, customerIDs []uint) ([]models.Booking, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	want := make(map[uint]bool, len(customerIDs))
	for _, id := range customerIDs {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(b *models.Booking) bool { return want[b.CustomerID] }), nil
}

type memPackages struct {
	mu      sync.Mutex
	rows    map[uint]*models.Package
	findErr error
}

func newMemPackages(rows ...models.Package) *memPackages {
	s := &memPackages{rows: make(map[uint]*models.Package)}
	for i := range rows {
		p := rows[i]
		s.rows[p.ID] = &p
	}
	return s
}

func (s *memPackages) sorted(keep func(*models.Package) bool) []models.Package {
	var out []models.Package
	for _, p := range s.rows {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memPackages) GetByID(_ context.Context, id uint) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPackages) FindByIDs(_ context.Context, ids []uint) ([]models.Package, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(p *models.Package) bool { return want[p.ID] }), nil
}

func (s *memPackages) FindCreatedBetween(_ context.Context, start, end time.Time) ([]models.Package, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(p *models.Package) bool {
		return !p.CreatedAt.Before(start) && !p.CreatedAt.After(end)
	}), nil
}

func (s *memPackages) ListAfter(_ context.Context, afterID uint, limit int) ([]models.Package, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sorted(func(p *models.Package) bool { return p.ID > afterID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memPackages) FindByCustomerIDs(_ context.Context, customerIDs []uint) ([]models.Package, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	want := make(map[uint]bool, len(customerIDs))
	for _, id := range customerIDs {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(p *models.Package) bool { return want[p.CustomerID] }), nil
}

func (s *memPackages) UpdateValidity(_ context.Context, id uint, validFrom, validTo time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.ValidFrom, p.ValidTo = validFrom, validTo
	return nil
}

type memDirectory struct {
	mu        sync.Mutex
	teachers  []models.Teacher
	rates     []models.CommissionRate
	bonuses   []models.Bonus
	expenses  []models.Expense
	customers map[uint]*models.Customer

	teachersErr error
	bonusesErr  error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{customers: make(map[uint]*models.Customer)}
}

func (d *memDirectory) ListTeachers(context.Context) ([]models.Teacher, error) {
	if d.teachersErr != nil {
		return nil, d.teachersErr
	}
	out := append([]models.Teacher(nil), d.teachers...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) ListCommissionRates(context.Context) ([]models.CommissionRate, error) {
	return append([]models.CommissionRate(nil), d.rates...), nil
}

func (d *memDirectory) BonusesFor(_ context.Context, year, month int) ([]models.Bonus, error) {
	if d.bonusesErr != nil {
		return nil, d.bonusesErr
	}
	var out []models.Bonus
	for _, b := range d.bonuses {
		if b.Year == year && b.Month == month {
			out = append(out, b)
		}
	}
	return out, nil
}

func (d *memDirectory) ExpensesFor(_ context.Context, year, month int) ([]models.Expense, error) {
	var out []models.Expense
	for _, e := range d.expenses {
		if e.Year == year && e.Month == month {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *memDirectory) ListCustomersAfter(_ context.Context, afterID uint, limit int) ([]models.Customer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Customer
	for _, c := range d.customers {
		if c.ID > afterID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *memDirectory) UpdateCustomerCreatedAt(_ context.Context, id uint, createdAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.CreatedAt = createdAt
	return nil
}

type memReports struct {
	mu       sync.Mutex
	reports  map[models.PeriodKey]*models.PaymentReport
	links    map[uint][]uint // report id -> bonus ids
	owner    map[uint]uint   // bonus id -> report id
	archives []models.ReportArchive
	nextID   uint
	creates  int

	replaceErr error
	// beforeCreate runs before the uniqueness check to simulate a concurrent insert.
	beforeCreate func(key models.PeriodKey)
}

func newMemReports() *memReports {
	return &memReports{
		reports: make(map[models.PeriodKey]*models.PaymentReport),
		links:   make(map[uint][]uint),
		owner:   make(map[uint]uint),
	}
}

func (r *memReports) FindByPeriod(_ context.Context, key models.PeriodKey) (*models.PaymentReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return rep, nil
}

func (r *memReports) ExistsForPeriod(_ context.Context, key models.PeriodKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.reports[key]
	return ok, nil
}

func (r *memReports) Create(_ context.Context, report *models.PaymentReport, bonusIDs, _ []uint) error {
	if r.beforeCreate != nil {
		r.beforeCreate(report.Key())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[report.Key()]; ok {
		return repositories.ErrDuplicatePeriod
	}
	r.insert(report, bonusIDs)
	return nil
}

func (r *memReports) Replace(_ context.Context, report *models.PaymentReport, bonusIDs, _ []uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return false, r.replaceErr
	}
	previous, replaced := r.reports[report.Key()]
	if replaced {
		for _, id := range r.links[previous.ID] {
			delete(r.owner, id)
		}
		delete(r.links, previous.ID)
		delete(r.reports, report.Key())
	}
	r.insert(report, bonusIDs)
	return replaced, nil
}

// insert mirrors the repository: only unlinked bonuses are claimed by the new report.
func (r *memReports) insert(report *models.PaymentReport, bonusIDs []uint) {
	r.nextID++
	r.creates++
	report.ID = r.nextID
	r.reports[report.Key()] = report
	var claimed []uint
	for _, id := range bonusIDs {
		if _, taken := r.owner[id]; taken {
			continue
		}
		r.owner[id] = report.ID
		claimed = append(claimed, id)
	}
	r.links[report.ID] = claimed
}

func (r *memReports) CreateArchive(_ context.Context, archive *models.ReportArchive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	archive.ID = uint(len(r.archives) + 1)
	r.archives = append(r.archives, *archive)
	return nil
}

func (r *memReports) HasArchive(_ context.Context, reportID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.archives {
		if a.ReportID == reportID && a.Status == "completed" {
			return true, nil
		}
	}
	return false, nil
}

var (
	_ BookingStore   = (*memBookings)(nil)
	_ PackageStore   = (*memPackages)(nil)
	_ DirectoryStore = (*memDirectory)(nil)
	_ ReportStore    = (*memReports)(nil)
	_ ArchiveStore   = (*memReports)(nil)
)

func uintPtr(v uint) *uint { return &v }

package seeders

import (
	"log"
	"time"

	"studio_engine/database"
	"studio_engine/models"

	"github.com/shopspring/decimal"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedCommissionRates()
	SeedTeachers()
	SeedCustomers()
	SeedPackagesAndBookings(time.Now().UTC())

	log.Println("Database seeding completed successfully!")
}

// DefaultCommissionRates is the studio's standard rate table.
func DefaultCommissionRates() []models.CommissionRate {
	bases := map[models.SessionType]int64{
		models.SessionPrivate: 1000,
		models.SessionDuo:     1500,
		models.SessionGroup:   2000,
	}
	rates := map[models.TeacherType]decimal.Decimal{
		models.TeacherStudio:    decimal.RequireFromString("0.35"),
		models.TeacherFreelance: decimal.RequireFromString("0.50"),
	}

	var rows []models.CommissionRate
	for _, tt := range []models.TeacherType{models.TeacherStudio, models.TeacherFreelance} {
		for _, st := range models.SessionTypes {
			rows = append(rows, models.CommissionRate{
				TeacherType: tt,
				SessionType: st,
				Base:        decimal.NewFromInt(bases[st]),
				Rate:        rates[tt],
			})
		}
	}
	return rows
}

// SeedCommissionRates seeds the rate table
func SeedCommissionRates() {
	var count int64
	database.DB.Model(&models.CommissionRate{}).Count(&count)
	if count > 0 {
		log.Println("Commission rates already seeded, skipping...")
		return
	}

	for _, rate := range DefaultCommissionRates() {
		if err := database.DB.Create(&rate).Error; err != nil {
			log.Printf("Error seeding commission rate %s/%s: %v", rate.TeacherType, rate.SessionType, err)
		}
	}
	log.Println("Commission rates seeded successfully")
}

// SeedTeachers seeds one studio and one freelance teacher
func SeedTeachers() {
	var count int64
	database.DB.Model(&models.Teacher{}).Count(&count)
	if count > 0 {
		log.Println("Teachers already seeded, skipping...")
		return
	}

	teachers := []models.Teacher{
		{BaseModel: models.BaseModel{ID: 1}, Name: "Studio Teacher", Email: "studio@example.com", TeacherType: models.TeacherStudio, BaseSalary: decimal.NewFromInt(15000), Active: true},
		{BaseModel: models.BaseModel{ID: 2}, Name: "Freelance Teacher", Email: "freelance@example.com", TeacherType: models.TeacherFreelance, Active: true},
	}
	for _, teacher := range teachers {
		if err := database.DB.Create(&teacher).Error; err != nil {
			log.Printf("Error seeding teacher %s: %v", teacher.Email, err)
		}
	}
	log.Println("Teachers seeded successfully")
}

// SeedCustomers seeds demo customers
func SeedCustomers() {
	var count int64
	database.DB.Model(&models.Customer{}).Count(&count)
	if count > 0 {
		log.Println("Customers already seeded, skipping...")
		return
	}

	customers := []models.Customer{
		{BaseModel: models.BaseModel{ID: 1}, Name: "Demo Customer A", Email: "a@example.com", Phone: "0800000001"},
		{BaseModel: models.BaseModel{ID: 2}, Name: "Demo Customer B", Email: "b@example.com", Phone: "0800000002"},
	}
	for _, customer := range customers {
		if err := database.DB.Create(&customer).Error; err != nil {
			log.Printf("Error seeding customer %s: %v", customer.Email, err)
		}
	}
	log.Println("Customers seeded successfully")
}

// SeedPackagesAndBookings seeds a package per customer with last month's sessions
// so the monthly report has something to pay.
func SeedPackagesAndBookings(now time.Time) {
	var count int64
	database.DB.Model(&models.Package{}).Count(&count)
	if count > 0 {
		log.Println("Packages already seeded, skipping...")
		return
	}

	packages, bookings := DemoPackagesAndBookings(now)
	for _, pkg := range packages {
		if err := database.DB.Create(&pkg).Error; err != nil {
			log.Printf("Error seeding package %s: %v", pkg.Name, err)
			return
		}
	}
	for _, b := range bookings {
		if err := database.DB.Create(&b).Error; err != nil {
			log.Printf("Error seeding booking for package %v: %v", b.PackageID, err)
		}
	}
	log.Println("Packages and bookings seeded successfully")
}

// DemoPackagesAndBookings builds the demo rows relative to now. Every package
// ledger reconciles: remaining sessions equal total minus every booking made
// against the package.
func DemoPackagesAndBookings(now time.Time) ([]models.Package, []models.Booking) {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := firstOfMonth.AddDate(0, -1, 0)
	validFrom := lastMonth.AddDate(0, 0, -7)

	private := uint(1)
	duo := uint(2)
	packages := []models.Package{
		{BaseModel: models.BaseModel{ID: private, CreatedAt: validFrom}, CustomerID: 1, Name: "Private 10", SessionType: models.SessionPrivate, TotalSessions: 10, Price: decimal.NewFromInt(12000), ValidFrom: validFrom, Status: models.PackageActive},
		{BaseModel: models.BaseModel{ID: duo, CreatedAt: validFrom}, CustomerID: 2, Name: "Duo 5", SessionType: models.SessionDuo, TotalSessions: 5, Price: decimal.NewFromInt(9000), ValidFrom: validFrom, Status: models.PackageActive},
	}

	var bookings []models.Booking
	add := func(customerID, teacherID uint, pkgID *uint, day int, status models.BookingStatus) {
		start := lastMonth.AddDate(0, 0, day).Add(10 * time.Hour)
		b := models.Booking{
			CustomerID: customerID,
			TeacherID:  teacherID,
			PackageID:  pkgID,
			StartTime:  start,
			EndTime:    start.Add(time.Hour),
			Status:     status,
		}
		if status == models.BookingCompleted || status == models.BookingNoShow {
			marked := b.EndTime
			b.AttendanceMarkedAt = &marked
		}
		bookings = append(bookings, b)
	}
	for day := 0; day < 4; day++ {
		add(1, 1, &private, day*3, models.BookingCompleted)
	}
	add(1, 1, &private, 14, models.BookingNoShow)
	add(2, 2, &duo, 5, models.BookingCompleted)
	add(2, 2, &duo, 12, models.BookingCancelled)

	used := map[uint]int{}
	for _, b := range bookings {
		if b.PackageID != nil {
			used[*b.PackageID]++
		}
	}
	for i := range packages {
		p := &packages[i]
		p.ValidTo = p.PolicyValidTo()
		p.RemainingSessions = p.TotalSessions - used[p.ID]
	}
	return packages, bookings
}

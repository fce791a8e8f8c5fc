package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"studio_engine/clock"
	"studio_engine/models"
	"studio_engine/storage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Summary"
	sheetTeachers = "Teacher Payments"
	sheetPackages = "Packages Sold"
)

// ObjectStore receives exported workbooks.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// ReportExporter renders payment reports to xlsx and archives them.
type ReportExporter struct {
	reports  ReportStore
	archives ArchiveStore
	objects  ObjectStore
	clock    clock.Clock
	log      logrus.FieldLogger
}

func NewReportExporter(reports ReportStore, archives ArchiveStore, objects ObjectStore, clk clock.Clock, log logrus.FieldLogger) *ReportExporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReportExporter{reports: reports, archives: archives, objects: objects, clock: clk, log: log}
}

// FileName is the download name of a report workbook.
func FileName(key models.PeriodKey) string {
	return fmt.Sprintf("payment-report-%04d-%02d-%s.xlsx", key.Year, key.Month, key.ReportType)
}

func money(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

// Workbook builds the xlsx for a report.
func (e *ReportExporter) Workbook(r *models.PaymentReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Period", r.Key().String()},
		{"Start", r.StartDate.UTC().Format("2006-01-02 15:04:05.000")},
		{"End", r.EndDate.UTC().Format("2006-01-02 15:04:05.000")},
		{"Total revenue", money(r.TotalRevenue)},
		{"Teacher payments", money(r.TotalTeacherPayments)},
		{"Expenses", money(r.TotalExpenses)},
		{"Total costs", money(r.TotalCosts)},
		{"Profit / loss", money(r.ProfitLoss)},
		{"Generated at", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Generated by", string(r.GeneratedBy)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 20)
	_ = f.SetColWidth(sheetSummary, "B", "B", 28)

	if _, err := f.NewSheet(sheetTeachers); err != nil {
		return nil, err
	}
	rows := [][]interface{}{{
		"#", "Teacher ID", "Teacher", "Type",
		"Private", "Private commission", "Duo", "Duo commission", "Group", "Group commission",
		"Total commission", "Base salary", "Bonuses", "Total",
	}}
	for _, tp := range r.TeacherPayments {
		rows = append(rows, []interface{}{
			tp.Position, tp.TeacherID, tp.TeacherName, string(tp.TeacherType),
			tp.PrivateSessions, money(tp.PrivateCommission),
			tp.DuoSessions, money(tp.DuoCommission),
			tp.GroupSessions, money(tp.GroupCommission),
			money(tp.TotalCommission), money(tp.BaseSalary), money(tp.Bonuses), money(tp.Total),
		})
	}
	if err := writeRows(f, sheetTeachers, rows); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetTeachers, "A1", "N1", bold); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sheetPackages); err != nil {
		return nil, err
	}
	var sold []models.PackageSnapshot
	if !r.PackagesSold.IsNull() {
		if err := json.Unmarshal(r.PackagesSold, &sold); err != nil {
			return nil, fmt.Errorf("decode packages sold: %w", err)
		}
	}
	rows = [][]interface{}{{"Package ID", "Customer ID", "Name", "Session type", "Sessions", "Price", "Sold at"}}
	for _, p := range sold {
		rows = append(rows, []interface{}{
			p.PackageID, p.CustomerID, p.Name, string(p.SessionType), p.TotalSessions, money(p.Price),
			p.SoldAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	if err := writeRows(f, sheetPackages, rows); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetPackages, "A1", "G1", bold); err != nil {
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

// WriteXLSX streams the workbook for a report to w.
func (e *ReportExporter) WriteXLSX(r *models.PaymentReport, w io.Writer) error {
	f, err := e.Workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Archive uploads the stored report for key and records the archive row.
// A report that already has a completed archive is left alone.
func (e *ReportExporter) Archive(ctx context.Context, key models.PeriodKey) (*models.ReportArchive, error) {
	r, err := e.reports.FindByPeriod(ctx, key)
	if err != nil {
		return nil, err
	}
	done, err := e.archives.HasArchive(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if done {
		e.log.WithField("report_id", r.ID).Info("report already archived, skipped")
		return nil, nil
	}

	var buf bytes.Buffer
	if err := e.WriteXLSX(r, &buf); err != nil {
		return nil, err
	}

	archive := &models.ReportArchive{
		ReportID:   r.ID,
		Year:       r.Year,
		Month:      r.Month,
		ReportType: r.ReportType,
		FileName:   FileName(key),
		S3Key:      storage.ReportKey(key),
		FileSize:   int64(buf.Len()),
		Status:     "completed",
	}
	if err := e.objects.PutObject(ctx, archive.S3Key, buf.Bytes()); err != nil {
		archive.Status = "failed"
		archive.Error = err.Error()
		if cerr := e.archives.CreateArchive(ctx, archive); cerr != nil {
			e.log.WithError(cerr).WithField("report_id", r.ID).Error("failed archive could not be recorded")
		}
		e.log.WithError(err).WithField("report_id", r.ID).Error("report archive upload failed")
		return archive, err
	}
	if err := e.archives.CreateArchive(ctx, archive); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"report_id": r.ID,
		"s3_key":    archive.S3Key,
		"size":      archive.FileSize,
	}).Info("payment report archived")
	return archive, nil
}

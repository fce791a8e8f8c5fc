package repositories

import "errors"

var (
	// ErrNotFound is returned when a lookup by key finds no row.
	ErrNotFound = errors.New("repositories: record not found")

	// ErrDuplicatePeriod is returned when a report already exists for (year, month, report_type).
	ErrDuplicatePeriod = errors.New("repositories: payment report already exists for period")

	// ErrQuery wraps any other storage failure.
	ErrQuery = errors.New("repositories: query failed")
)

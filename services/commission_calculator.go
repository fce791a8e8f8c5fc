package services

import (
	"errors"
	"fmt"

	"studio_engine/models"

	"github.com/shopspring/decimal"
)

var (
	ErrRateNotFound       = errors.New("commission: no rate for teacher type and session type")
	ErrUnknownSessionType = errors.New("commission: unknown session type")
)

// SessionRecord is one completed session credited to a teacher.
type SessionRecord struct {
	BookingID   uint
	SessionType models.SessionType
}

type rateKey struct {
	teacherType models.TeacherType
	sessionType models.SessionType
}

// RateEntry is the base amount and commission fraction for one class of session.
type RateEntry struct {
	Base decimal.Decimal
	Rate decimal.Decimal
}

// RateTable maps (teacher type, session type) to its rate entry.
type RateTable struct {
	entries map[rateKey]RateEntry
}

// NewRateTable indexes rows loaded from storage. Later rows win on duplicates.
func NewRateTable(rows []models.CommissionRate) RateTable {
	t := RateTable{entries: make(map[rateKey]RateEntry, len(rows))}
	for _, r := range rows {
		t.entries[rateKey{r.TeacherType, r.SessionType}] = RateEntry{Base: r.Base, Rate: r.Rate}
	}
	return t
}

// Lookup returns the entry for a teacher/session class.
func (t RateTable) Lookup(teacherType models.TeacherType, sessionType models.SessionType) (RateEntry, bool) {
	e, ok := t.entries[rateKey{teacherType, sessionType}]
	return e, ok
}

// TypeCommission is the subtotal for one session type.
type TypeCommission struct {
	SessionType models.SessionType `json:"session_type"`
	Count       int                `json:"count"`
	Base        decimal.Decimal    `json:"base"`
	Rate        decimal.Decimal    `json:"rate"`
	Commission  decimal.Decimal    `json:"commission"`
}

// CommissionBreakdown is the calculator output for one teacher.
type CommissionBreakdown struct {
	TeacherID       uint               `json:"teacher_id"`
	TeacherType     models.TeacherType `json:"teacher_type"`
	ByType          []TypeCommission   `json:"by_type"` // always private, duo, group
	TotalCommission decimal.Decimal    `json:"total_commission"`
	BaseSalary      decimal.Decimal    `json:"base_salary"`
	TotalPayment    decimal.Decimal    `json:"total_payment"`
}

// For returns the subtotal for a session type.
func (b CommissionBreakdown) For(st models.SessionType) TypeCommission {
	for _, tc := range b.ByType {
		if tc.SessionType == st {
			return tc
		}
	}
	return TypeCommission{SessionType: st}
}

// Calculate computes a teacher's commission for the given sessions. It is a pure
// function of its inputs: commission = base * rate * count per session type,
// totalPayment = totalCommission + baseSalary (studio teachers only).
// A session type with no sessions does not need a rate entry.
func Calculate(teacher *models.Teacher, sessions []SessionRecord, rates RateTable) (CommissionBreakdown, error) {
	counts := make(map[models.SessionType]int, len(models.SessionTypes))
	for _, s := range sessions {
		if !s.SessionType.Valid() {
			return CommissionBreakdown{}, fmt.Errorf("%w: %q (booking %d)", ErrUnknownSessionType, s.SessionType, s.BookingID)
		}
		counts[s.SessionType]++
	}

	out := CommissionBreakdown{
		TeacherID:       teacher.ID,
		TeacherType:     teacher.TeacherType,
		ByType:          make([]TypeCommission, 0, len(models.SessionTypes)),
		TotalCommission: decimal.Zero,
		BaseSalary:      decimal.Zero,
	}

	for _, st := range models.SessionTypes {
		tc := TypeCommission{SessionType: st, Commission: decimal.Zero}
		n := counts[st]
		entry, ok := rates.Lookup(teacher.TeacherType, st)
		switch {
		case ok:
			tc.Base, tc.Rate = entry.Base, entry.Rate
		case n > 0:
			return CommissionBreakdown{}, fmt.Errorf("%w: %s/%s", ErrRateNotFound, teacher.TeacherType, st)
		}
		if n > 0 {
			tc.Count = n
			tc.Commission = entry.Base.Mul(entry.Rate).Mul(decimal.NewFromInt(int64(n)))
		}
		out.ByType = append(out.ByType, tc)
		out.TotalCommission = out.TotalCommission.Add(tc.Commission)
	}

	if teacher.TeacherType == models.TeacherStudio {
		out.BaseSalary = teacher.BaseSalary
	}
	out.TotalPayment = out.TotalCommission.Add(out.BaseSalary)
	return out, nil
}

package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - The dimensional time bucket of the cube
// =============================================================================

// Period is one cube time bucket: an ISO week (Monday through Sunday, UTC)
// or a calendar month. PeriodEnd is always the last day of the same bucket,
// so PeriodEnd >= PeriodStart holds by construction.
type Period struct {
	Type  PeriodType
	Start Date
	End   Date
}

// Contains reports whether the day falls within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return string(p.Type) + "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// WeeklyPeriodFor returns the ISO week (Monday start) containing the day.
func WeeklyPeriodFor(d Date) Period {
	// time.Weekday numbers Sunday as 0; shift so Monday is 0.
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDays(-offset)
	return Period{Type: PeriodWeekly, Start: start, End: start.AddDays(6)}
}

// MonthlyPeriodFor returns the calendar month containing the day.
func MonthlyPeriodFor(d Date) Period {
	start := NewDate(d.Year(), d.Month(), 1)
	return Period{Type: PeriodMonthly, Start: start, End: start.AddMonths(1).AddDays(-1)}
}

// PeriodFor dispatches on the period type.
func PeriodFor(t PeriodType, d Date) Period {
	if t == PeriodWeekly {
		return WeeklyPeriodFor(d)
	}
	return MonthlyPeriodFor(d)
}

// PeriodsFor returns both cube periods (weekly and monthly) containing the
// day. Every posting contributes to exactly these two buckets.
func PeriodsFor(d Date) []Period {
	return []Period{WeeklyPeriodFor(d), MonthlyPeriodFor(d)}
}

// PeriodsOfTypeInRange enumerates the periods of one type that intersect
// [start, end], in chronological order.
func PeriodsOfTypeInRange(t PeriodType, start, end Date) []Period {
	var periods []Period
	p := PeriodFor(t, start)
	for p.Start.BeforeOrEqual(end) {
		periods = append(periods, p)
		p = PeriodFor(t, p.End.AddDays(1))
	}
	return periods
}

// PeriodsInRange enumerates every weekly and monthly period intersecting
// [start, end]. This is the backfill work list.
func PeriodsInRange(start, end Date) []Period {
	periods := PeriodsOfTypeInRange(PeriodWeekly, start, end)
	return append(periods, PeriodsOfTypeInRange(PeriodMonthly, start, end)...)
}

// =============================================================================
// CUBE DIMENSIONS - Group-by columns for aggregation queries
// =============================================================================

// CubeDimension names a dimension of the cube usable in a group-by. Facts
// (total amount, transaction count) are never valid group-by columns.
type CubeDimension string

const (
	DimPeriodType      CubeDimension = "period_type"
	DimPeriodStart     CubeDimension = "period_start"
	DimTransactionType CubeDimension = "transaction_type"
	DimCategory        CubeDimension = "category_id"
	DimAccount         CubeDimension = "account_id"
	DimIsRecurring     CubeDimension = "is_recurring"
)

// Valid reports whether the dimension is a member of the closed set.
func (d CubeDimension) Valid() bool {
	switch d {
	case DimPeriodType, DimPeriodStart, DimTransactionType, DimCategory, DimAccount, DimIsRecurring:
		return true
	}
	return false
}

// AggregateRow is one grouped result of a cube aggregation. Only the fields
// named in the group-by are populated; the rest stay nil.
type AggregateRow struct {
	PeriodType      *PeriodType
	PeriodStart     *Date
	TransactionType *TransactionType
	CategoryID      *string
	CategoryName    *string
	AccountID       *string
	AccountName     *string
	IsRecurring     *bool

	TotalAmount      decimal.Decimal
	TransactionCount int64
}

// Package ledger records one aggregate wallet total per calendar day and
// derives month-over-month earnings from those snapshots.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the key format of every ledger entry.
const DateLayout = "2006-01-02"

// ErrUnavailable is returned by earnings queries when a required month has
// no recorded snapshots.
var ErrUnavailable = errors.New("ledger: no data for period")

// Ledger is a durable date -> total mapping. A later Put for the same date
// replaces the earlier value.
type Ledger interface {
	Put(ctx context.Context, date string, value decimal.Decimal) error
	Entries(ctx context.Context) (Entries, error)
}

// Entries is a snapshot of the ledger contents keyed by YYYY-MM-DD.
type Entries map[string]decimal.Decimal

// DateOf formats t as a ledger key in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ValidateDate rejects keys that are not YYYY-MM-DD calendar dates.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid ledger date %q: %w", date, err)
	}
	return nil
}

// Dates returns the keys in chronological order.
func (e Entries) Dates() []string {
	dates := make([]string, 0, len(e))
	for d := range e {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// monthBounds returns the earliest and latest recorded dates whose prefix
// is "YYYY-MM-". ok is false when the month has no entries.
func (e Entries) monthBounds(year int, month time.Month) (first, last string, ok bool) {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	for d := range e {
		if !strings.HasPrefix(d, prefix) {
			continue
		}
		if !ok || d < first {
			first = d
		}
		if !ok || d > last {
			last = d
		}
		ok = true
	}
	return first, last, ok
}

// previousMonth returns the calendar month before asOf's month, evaluated in
// asOf's own location.
func previousMonth(asOf time.Time) (int, time.Month) {
	p := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location()).AddDate(0, -1, 0)
	return p.Year(), p.Month()
}

// MonthlyEarnings is the latest value of asOf's month minus the latest value
// of the month before it. asOf is interpreted in its own location.
func (e Entries) MonthlyEarnings(asOf time.Time) (decimal.Decimal, error) {
	_, curLast, ok := e.monthBounds(asOf.Year(), asOf.Month())
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	py, pm := previousMonth(asOf)
	_, prevLast, ok := e.monthBounds(py, pm)
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	return e[curLast].Sub(e[prevLast]), nil
}

// PreviousMonthEarnings is the net change across the month before asOf's
// month: value at its last recorded date minus value at its first.
func (e Entries) PreviousMonthEarnings(asOf time.Time) (decimal.Decimal, error) {
	py, pm := previousMonth(asOf)
	first, last, ok := e.monthBounds(py, pm)
	if !ok {
		return decimal.Zero, ErrUnavailable
	}
	return e[last].Sub(e[first]), nil
}

// PreviousMonthKey returns "YYYY-MM" of the month before asOf.
func PreviousMonthKey(asOf time.Time) string {
	py, pm := previousMonth(asOf)
	return fmt.Sprintf("%04d-%02d", py, int(pm))
}

// MonthlyEarnings loads l and computes Entries.MonthlyEarnings.
func MonthlyEarnings(ctx context.Context, l Ledger, asOf time.Time) (decimal.Decimal, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return entries.MonthlyEarnings(asOf)
}

// PreviousMonthEarnings loads l and computes Entries.PreviousMonthEarnings.
func PreviousMonthEarnings(ctx context.Context, l Ledger, asOf time.Time) (decimal.Decimal, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return entries.PreviousMonthEarnings(asOf)
}

package core

import (
	"errors"
	"time"
)

// Window is the budget period currently in force. End is the next reset
// boundary; Start is exactly one period before it. Spend matching treats both
// ends as inclusive at date granularity, mirroring the stored data's
// date-only semantics.
type Window struct {
	Start time.Time
	End   time.Time
}

var ErrNoAnchor = errors.New("budget has no anchor date")

// Contains reports whether a date falls inside the window, inclusive on both
// ends after time-of-day truncation.
func (w Window) Contains(d Date) bool {
	day := d.Truncate()
	return !day.Before(w.Start) && !day.After(w.End)
}

// CurrentWindow computes the period in force at now. The stored anchor is
// treated as one boundary in an infinite series of period boundaries; the
// anchor is advanced iteratively to the smallest boundary >= now, so the
// result is correct no matter how stale the stored value is. Pure function;
// callers may persist the advanced anchor as a cache but correctness never
// depends on it.
func CurrentWindow(b BudgetLimit, now time.Time) (Window, error) {
	if b.Anchor.IsEmpty() {
		return Window{}, ErrNoAnchor
	}
	if err := b.Frequency.Validate(); err != nil {
		return Window{}, err
	}

	day := DateOf(now).Truncate()
	end := b.Anchor.Truncate()
	for end.Before(day) {
		end = advance(end, b.Frequency)
	}
	return Window{Start: retreat(end, b.Frequency), End: end}, nil
}

// advance steps one whole period forward, calendar-aware for months and
// years.
func advance(t time.Time, f Frequency) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(1, 0, 0)
	}
}

func retreat(t time.Time, f Frequency) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, -7)
	case Monthly:
		return t.AddDate(0, -1, 0)
	default:
		return t.AddDate(-1, 0, 0)
	}
}

// SpendInWindow sums expense amounts for one category inside the window.
// Both sides of the category comparison are normalized, so records stored
// under a display label and records stored under the canonical key count
// toward the same total. Zero matching transactions is a valid zero spend,
// not an error.
func SpendInWindow(category string, w Window, txns []Transaction) Money {
	key := NormalizeCategory(category)
	var total Money
	for _, t := range txns {
		if t.Type != Expense {
			continue
		}
		if NormalizeCategory(t.Category) != key {
			continue
		}
		if !w.Contains(t.OccurredAt) {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total
}

// Percentage is spend over limit as a display percentage, saturated at 100 so
// downstream progress rendering never exceeds a full bar. A non-positive
// limit yields 0 rather than dividing by zero.
func Percentage(spend, limit Money) float64 {
	if limit.Cents <= 0 {
		return 0
	}
	p := float64(spend.Cents) / float64(limit.Cents) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

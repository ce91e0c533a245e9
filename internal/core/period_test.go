package core

import (
	"errors"
	"testing"
	"time"
)

func TestCurrentWindow(t *testing.T) {
	tests := []struct {
		name      string
		anchor    Date
		frequency Frequency
		now       time.Time
		wantStart Date
		wantEnd   Date
	}{
		{
			name:      "monthly anchor in current period",
			anchor:    NewDate(2024, 2, 1),
			frequency: Monthly,
			now:       time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantStart: NewDate(2024, 1, 1),
			wantEnd:   NewDate(2024, 2, 1),
		},
		{
			name:      "now exactly on anchor boundary",
			anchor:    NewDate(2024, 2, 1),
			frequency: Monthly,
			now:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 1, 1),
			wantEnd:   NewDate(2024, 2, 1),
		},
		{
			name:      "anchor one period behind",
			anchor:    NewDate(2024, 2, 1),
			frequency: Monthly,
			now:       time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 2, 1),
			wantEnd:   NewDate(2024, 3, 1),
		},
		{
			name:      "anchor fourteen months stale",
			anchor:    NewDate(2023, 1, 1),
			frequency: Monthly,
			now:       time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 3, 1),
			wantEnd:   NewDate(2024, 4, 1),
		},
		{
			name:      "weekly advance",
			anchor:    NewDate(2024, 1, 1),
			frequency: Weekly,
			now:       time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 1, 15),
			wantEnd:   NewDate(2024, 1, 22),
		},
		{
			name:      "yearly advance across leap year",
			anchor:    NewDate(2023, 3, 1),
			frequency: Yearly,
			now:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 3, 1),
			wantEnd:   NewDate(2025, 3, 1),
		},
		{
			name:      "monthly from month-end anchor",
			anchor:    NewDate(2024, 1, 31),
			frequency: Monthly,
			now:       time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			wantStart: NewDate(2024, 2, 2),
			wantEnd:   NewDate(2024, 3, 2), // Jan 31 + 1 month normalizes past Feb
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := BudgetLimit{
				OwnerID:   "o1",
				Category:  "groceries",
				Limit:     Money{Cents: 30000},
				Frequency: tt.frequency,
				Anchor:    tt.anchor,
			}
			w, err := CurrentWindow(limit, tt.now)
			if err != nil {
				t.Fatalf("CurrentWindow returned error: %v", err)
			}
			if !w.Start.Equal(tt.wantStart.Truncate()) {
				t.Errorf("Start = %v, want %v", w.Start, tt.wantStart.Truncate())
			}
			if !w.End.Equal(tt.wantEnd.Truncate()) {
				t.Errorf("End = %v, want %v", w.End, tt.wantEnd.Truncate())
			}
			if !w.Contains(DateOf(tt.now)) {
				t.Errorf("window [%v, %v] does not contain now %v", w.Start, w.End, tt.now)
			}
		})
	}
}

func TestCurrentWindow_Errors(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := CurrentWindow(BudgetLimit{Frequency: Monthly}, now)
	if !errors.Is(err, ErrNoAnchor) {
		t.Errorf("missing anchor: error = %v, want ErrNoAnchor", err)
	}

	_, err = CurrentWindow(BudgetLimit{Anchor: NewDate(2024, 1, 1), Frequency: "daily"}, now)
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("bad frequency: error = %v, want ErrInvalidFrequency", err)
	}
}

// The computed window is a fixed point: recomputing with an anchor advanced
// to the window's end changes nothing.
func TestCurrentWindow_Idempotent(t *testing.T) {
	limit := BudgetLimit{
		OwnerID:   "o1",
		Category:  "rent",
		Limit:     Money{Cents: 80000},
		Frequency: Monthly,
		Anchor:    NewDate(2022, 5, 1),
	}
	now := time.Date(2024, 8, 20, 14, 0, 0, 0, time.UTC)

	first, err := CurrentWindow(limit, now)
	if err != nil {
		t.Fatalf("first CurrentWindow: %v", err)
	}

	limit.Anchor = DateOf(first.End)
	second, err := CurrentWindow(limit, now)
	if err != nil {
		t.Fatalf("second CurrentWindow: %v", err)
	}

	if !first.Start.Equal(second.Start) || !first.End.Equal(second.End) {
		t.Errorf("window moved after anchor refresh: [%v, %v] vs [%v, %v]",
			first.Start, first.End, second.Start, second.End)
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: NewDate(2024, 1, 1).Truncate(), End: NewDate(2024, 2, 1).Truncate()}

	tests := []struct {
		name string
		d    Date
		want bool
	}{
		{name: "start boundary inclusive", d: NewDate(2024, 1, 1), want: true},
		{name: "end boundary inclusive", d: NewDate(2024, 2, 1), want: true},
		{name: "interior", d: NewDate(2024, 1, 15), want: true},
		{name: "before start", d: NewDate(2023, 12, 31), want: false},
		{name: "after end", d: NewDate(2024, 2, 2), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.d); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestSpendInWindow(t *testing.T) {
	w := Window{Start: NewDate(2024, 3, 1).Truncate(), End: NewDate(2024, 4, 1).Truncate()}
	txns := []Transaction{
		{Type: Expense, Category: "groceries", Amount: Money{Cents: 2000}, OccurredAt: NewDate(2024, 3, 5)},
		{Type: Expense, Category: "Groceries", Amount: Money{Cents: 1500}, OccurredAt: NewDate(2024, 3, 20)},
		{Type: Expense, Category: "dining", Amount: Money{Cents: 9999}, OccurredAt: NewDate(2024, 3, 10)},
		{Type: Income, Category: "groceries", Amount: Money{Cents: 5000}, OccurredAt: NewDate(2024, 3, 12)},
		{Type: Expense, Category: "groceries", Amount: Money{Cents: 8888}, OccurredAt: NewDate(2024, 2, 28)},
	}

	if got := SpendInWindow("groceries", w, txns); got.Cents != 3500 {
		t.Errorf("SpendInWindow = %d, want 3500", got.Cents)
	}
	// Both sides normalize, so a display label queries the same total.
	if got := SpendInWindow("GROCERIES", w, txns); got.Cents != 3500 {
		t.Errorf("SpendInWindow with display label = %d, want 3500", got.Cents)
	}
	if got := SpendInWindow("travel", w, txns); got.Cents != 0 {
		t.Errorf("SpendInWindow with no matches = %d, want 0", got.Cents)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		spend int64
		limit int64
		want  float64
	}{
		{name: "partial", spend: 12000, limit: 30000, want: 40},
		{name: "full", spend: 30000, limit: 30000, want: 100},
		{name: "overspend saturates", spend: 45000, limit: 30000, want: 100},
		{name: "zero spend", spend: 0, limit: 30000, want: 0},
		{name: "zero limit", spend: 100, limit: 0, want: 0},
		{name: "negative limit", spend: 100, limit: -5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentage(Money{Cents: tt.spend}, Money{Cents: tt.limit})
			if got != tt.want {
				t.Errorf("Percentage(%d, %d) = %v, want %v", tt.spend, tt.limit, got, tt.want)
			}
		})
	}
}

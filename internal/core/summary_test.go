package core

import "testing"

func TestSummarizeMonth(t *testing.T) {
	txns := []Transaction{
		{Type: Income, Category: "salary", Amount: Money{Cents: 250000}, OccurredAt: NewDate(2024, 5, 1)},
		{Type: Expense, Category: "rent", Amount: Money{Cents: 80000}, OccurredAt: NewDate(2024, 5, 2)},
		{Type: Expense, Category: "groceries", Amount: Money{Cents: 20000}, OccurredAt: NewDate(2024, 5, 10)},
		{Type: Expense, Category: "Groceries", Amount: Money{Cents: 5000}, OccurredAt: NewDate(2024, 5, 20)},
		{Type: Expense, Category: "Gym/Fitness", Amount: Money{Cents: 4000}, OccurredAt: NewDate(2024, 5, 15)},
		// Different month, must not count.
		{Type: Expense, Category: "travel", Amount: Money{Cents: 99999}, OccurredAt: NewDate(2024, 6, 1)},
	}

	ov := SummarizeMonth(2024, 5, txns)

	if ov.Income.Cents != 250000 {
		t.Errorf("Income = %d, want 250000", ov.Income.Cents)
	}
	if ov.Expense.Cents != 109000 {
		t.Errorf("Expense = %d, want 109000", ov.Expense.Cents)
	}
	if ov.Essential.Cents != 105000 {
		t.Errorf("Essential = %d, want 105000", ov.Essential.Cents)
	}
	if ov.Lifestyle.Cents != 4000 {
		t.Errorf("Lifestyle = %d, want 4000", ov.Lifestyle.Cents)
	}

	if len(ov.ByCategory) != 3 {
		t.Fatalf("ByCategory has %d rows, want 3: %+v", len(ov.ByCategory), ov.ByCategory)
	}
	// Sorted by descending amount: rent, groceries (both renderings folded),
	// gym-fitness.
	wantOrder := []struct {
		name  string
		cents int64
	}{
		{"rent", 80000},
		{"groceries", 25000},
		{"gym-fitness", 4000},
	}
	for i, want := range wantOrder {
		got := ov.ByCategory[i]
		if got.Name != want.name || got.Amount.Cents != want.cents {
			t.Errorf("ByCategory[%d] = %s/%d, want %s/%d", i, got.Name, got.Amount.Cents, want.name, want.cents)
		}
	}
}

func TestSummarizeMonth_Empty(t *testing.T) {
	ov := SummarizeMonth(2024, 5, nil)
	if ov.Income.Cents != 0 || ov.Expense.Cents != 0 || len(ov.ByCategory) != 0 {
		t.Errorf("empty month produced non-zero overview: %+v", ov)
	}
	if ov.Year != 2024 || ov.Month != 5 {
		t.Errorf("overview period = %d-%d, want 2024-5", ov.Year, ov.Month)
	}
}

package core

import "sort"

// CategoryAmount is an amount aggregated by canonical category key.
type CategoryAmount struct {
	Name   string
	Class  CategoryClass
	Amount Money
}

// MonthOverview is a compact summary for a specific year+month, the engine
// behind calendar and chart screens.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Income     Money
	Expense    Money
	Essential  Money
	Lifestyle  Money
	ByCategory []CategoryAmount
}

// SummarizeMonth aggregates transactions for one calendar month. Categories
// are normalized before grouping, so mixed label renderings fold into one
// row. Output rows are sorted by descending amount for stable display.
func SummarizeMonth(year, month int, txns []Transaction) MonthOverview {
	ov := MonthOverview{Year: year, Month: month}
	byCat := make(map[string]Money)
	for _, t := range txns {
		d := t.OccurredAt
		if d.Year() != year || int(d.Month()) != month {
			continue
		}
		if t.Type == Income {
			ov.Income = ov.Income.Add(t.Amount)
			continue
		}
		ov.Expense = ov.Expense.Add(t.Amount)
		key := NormalizeCategory(t.Category)
		byCat[key] = byCat[key].Add(t.Amount)
		if ClassOf(key) == ClassEssential {
			ov.Essential = ov.Essential.Add(t.Amount)
		} else {
			ov.Lifestyle = ov.Lifestyle.Add(t.Amount)
		}
	}
	for name, amt := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Class: ClassOf(name), Amount: amt})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount.Cents != ov.ByCategory[j].Amount.Cents {
			return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	return ov
}

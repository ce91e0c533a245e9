package core

import "strings"

// CategoryClass splits the expense taxonomy into essential and lifestyle
// spending; income categories carry their own class.
type CategoryClass string

const (
	ClassEssential CategoryClass = "essential"
	ClassLifestyle CategoryClass = "lifestyle"
	ClassIncome    CategoryClass = "income"
)

// categories is the closed taxonomy. Keys are in canonical normalized form;
// anything else arriving at a boundary is normalized first and must land on
// one of these.
var categories = map[string]CategoryClass{
	"groceries":     ClassEssential,
	"rent":          ClassEssential,
	"utilities":     ClassEssential,
	"transport":     ClassEssential,
	"healthcare":    ClassEssential,
	"insurance":     ClassEssential,
	"education":     ClassEssential,
	"dining":        ClassLifestyle,
	"entertainment": ClassLifestyle,
	"shopping":      ClassLifestyle,
	"travel":        ClassLifestyle,
	"gym-fitness":   ClassLifestyle,
	"subscriptions": ClassLifestyle,
	"gifts":         ClassLifestyle,
	"other":         ClassLifestyle,
	"salary":        ClassIncome,
	"business":      ClassIncome,
	"investments":   ClassIncome,
	"extra-income":  ClassIncome,
}

// NormalizeCategory maps any rendering of a category label to its canonical
// key: lowercase, non-alphanumeric runs collapsed to a single dash, no
// leading or trailing separator. "Gym/Fitness" and "gym_fitness" both become
// "gym-fitness". This is the only place category strings are normalized;
// every boundary goes through it.
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		default:
			sep = true
		}
	}
	return b.String()
}

// KnownCategory reports whether the label, after normalization, belongs to
// the taxonomy.
func KnownCategory(s string) bool {
	_, ok := categories[NormalizeCategory(s)]
	return ok
}

// ClassOf returns the class of a category label. Unknown labels default to
// lifestyle so an aggregation never drops money on the floor.
func ClassOf(s string) CategoryClass {
	if c, ok := categories[NormalizeCategory(s)]; ok {
		return c
	}
	return ClassLifestyle
}

// Categories returns the canonical expense and income keys, in no particular
// order, for taxonomy listings.
func Categories() (expense []string, income []string) {
	for k, c := range categories {
		if c == ClassIncome {
			income = append(income, k)
		} else {
			expense = append(expense, k)
		}
	}
	return expense, income
}

package core

import "testing"

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already canonical", input: "groceries", want: "groceries"},
		{name: "uppercase", input: "GROCERIES", want: "groceries"},
		{name: "slash separator", input: "Gym/Fitness", want: "gym-fitness"},
		{name: "underscore separator", input: "gym_fitness", want: "gym-fitness"},
		{name: "space separator", input: "extra income", want: "extra-income"},
		{name: "separator run collapses", input: "gym -- fitness", want: "gym-fitness"},
		{name: "surrounding whitespace", input: "  dining  ", want: "dining"},
		{name: "leading separator trimmed", input: "/travel", want: "travel"},
		{name: "trailing separator trimmed", input: "travel/", want: "travel"},
		{name: "digits kept", input: "Cat 42", want: "cat-42"},
		{name: "empty", input: "", want: ""},
		{name: "separators only", input: "///", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCategory(tt.input); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCategory_Idempotent(t *testing.T) {
	inputs := []string{"Gym/Fitness", "extra income", "GROCERIES", "a__b--c"}
	for _, in := range inputs {
		once := NormalizeCategory(in)
		if twice := NormalizeCategory(once); twice != once {
			t.Errorf("NormalizeCategory not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestKnownCategory(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"groceries", true},
		{"Gym/Fitness", true},
		{"gym/fitness", true},
		{"SALARY", true},
		{"extra income", true},
		{"crypto", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := KnownCategory(tt.input); got != tt.want {
			t.Errorf("KnownCategory(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		input string
		want  CategoryClass
	}{
		{"rent", ClassEssential},
		{"Gym/Fitness", ClassLifestyle},
		{"salary", ClassIncome},
		{"unknown-thing", ClassLifestyle},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.input); got != tt.want {
			t.Errorf("ClassOf(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCategories_Partition(t *testing.T) {
	expense, income := Categories()
	if len(expense) == 0 || len(income) == 0 {
		t.Fatalf("expected both partitions populated, got %d expense and %d income", len(expense), len(income))
	}
	for _, k := range income {
		if ClassOf(k) != ClassIncome {
			t.Errorf("income partition contains non-income category %q", k)
		}
	}
	for _, k := range expense {
		if ClassOf(k) == ClassIncome {
			t.Errorf("expense partition contains income category %q", k)
		}
	}
}

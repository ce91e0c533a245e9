package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Card   PaymentMethod = "card"
	Wallet PaymentMethod = "wallet"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	GoalActive         GoalStatus = "active"
	GoalCompleted      GoalStatus = "completed"
	GoalSurpassed      GoalStatus = "surpassed"
	GoalMissedDeadline GoalStatus = "missedDeadline"
)

type (
	TransactionType string

	PaymentMethod string

	Frequency string

	GoalStatus string

	Date struct {
		time.Time
	}

	// Transaction is an immutable ledger entry. Corrections happen via
	// compensating entries, never by editing a stored transaction.
	Transaction struct {
		ID             string
		OwnerID        string
		Type           TransactionType
		Category       string
		Amount         Money
		Method         PaymentMethod
		OccurredAt     Date
		Provider       string
		IdempotencyKey string
	}

	// Balance is the running cash total for one payment method. Amount must
	// always equal Initial plus the signed sum of all matching transactions
	// minus Allocated; Reconcile recomputes exactly that.
	Balance struct {
		OwnerID   string
		Method    PaymentMethod
		Amount    Money
		Initial   Money
		Allocated Money
		Version   int64
	}

	// BudgetLimit caps expense spend for one category. Anchor marks a period
	// boundary; the current window is always recomputed from it, so a stale
	// anchor never produces a stale window.
	BudgetLimit struct {
		OwnerID   string
		Category  string
		Limit     Money
		Frequency Frequency
		Anchor    Date
	}

	SavingsGoal struct {
		ID        string
		OwnerID   string
		Name      string
		Target    Money
		Current   Money
		Deadline  Date // optional
		CreatedAt time.Time

		// One-shot notification flags, persisted with the goal so a
		// terminal condition is announced once across devices.
		CompletedNotified bool
		SurpassedNotified bool
		MissedNotified    bool

		Version int64
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidMethod    = errors.New("invalid payment method")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrEmptyOwner       = errors.New("empty owner id")
	ErrEmptyGoalName    = errors.New("empty goal name")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("version conflict")
)

// NewDate creates a date at midnight UTC. Time of day carries no meaning in
// the ledger; every comparison goes through Truncate first.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary timestamp to its UTC calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Truncate drops the time-of-day component.
func (d Date) Truncate() time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	}
	return ErrInvalidType
}

func (m PaymentMethod) Validate() error {
	switch m {
	case Card, Wallet:
		return nil
	}
	return ErrInvalidMethod
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly, Yearly:
		return nil
	}
	return ErrInvalidFrequency
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Method.Validate(); err != nil {
		return err
	}
	// Amount is always non-negative; direction comes from Type alone.
	if t.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if !KnownCategory(t.Category) {
		return ErrUnknownCategory
	}
	if err := t.OccurredAt.Validate(); err != nil {
		return errors.New("invalid occurred date: " + err.Error())
	}
	if len(t.Provider) > 200 {
		return errors.New("provider too long (max 200 characters)")
	}
	return nil
}

func (b BudgetLimit) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !KnownCategory(b.Category) {
		return ErrUnknownCategory
	}
	if b.Limit.Cents <= 0 {
		return ErrInvalidAmount
	}
	if err := b.Frequency.Validate(); err != nil {
		return err
	}
	if err := b.Anchor.Validate(); err != nil {
		return errors.New("invalid anchor date: " + err.Error())
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGoalName
	}
	if len(g.Name) > 200 {
		return errors.New("goal name too long (max 200 characters)")
	}
	if g.Target.Cents <= 0 {
		return ErrInvalidAmount
	}
	if g.Current.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/store"
)

// BudgetService wraps the period engine: it turns a stored limit plus the
// transaction history into the window and spend currently in force.
type BudgetService struct {
	store store.Store
}

func NewBudgetService(st store.Store) *BudgetService {
	return &BudgetService{store: st}
}

// SetLimit creates or replaces the budget for one category.
func (s *BudgetService) SetLimit(ctx context.Context, b core.BudgetLimit) error {
	b.Category = core.NormalizeCategory(b.Category)
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertLimit(ctx, b); err != nil {
		return fmt.Errorf("upsert limit: %w", err)
	}
	slog.InfoContext(ctx, "Budget limit set",
		"owner_id", b.OwnerID,
		"category", b.Category,
		"limit_cents", b.Limit.Cents,
		"frequency", b.Frequency)
	return nil
}

// BudgetStatus is the display-ready state of one category budget. NoData
// marks a limit that cannot produce a meaningful window (zero limit or
// missing anchor); it is a valid state, not an error.
type BudgetStatus struct {
	Category    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Spent       core.Money
	Limit       core.Money
	Frequency   core.Frequency
	Percentage  float64
	NoData      bool
}

// GetBudgetStatus computes the current period window for the category and
// the expense total inside it. The anchor advance happens on every read, so
// the answer is correct even when the stored anchor is many periods old.
func (s *BudgetService) GetBudgetStatus(ctx context.Context, ownerID, category string, now time.Time) (BudgetStatus, error) {
	limit, err := s.store.GetLimit(ctx, ownerID, category)
	if err != nil {
		return BudgetStatus{}, err
	}
	return s.status(ctx, limit, now)
}

func (s *BudgetService) status(ctx context.Context, limit core.BudgetLimit, now time.Time) (BudgetStatus, error) {
	st := BudgetStatus{
		Category:  limit.Category,
		Limit:     limit.Limit,
		Frequency: limit.Frequency,
	}

	window, err := core.CurrentWindow(limit, now)
	if errors.Is(err, core.ErrNoAnchor) || limit.Limit.Cents <= 0 {
		st.NoData = true
		return st, nil
	}
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("current window: %w", err)
	}

	txns, err := s.store.Query(ctx, limit.OwnerID, store.TransactionFilter{
		Type:     core.Expense,
		Category: limit.Category,
		From:     window.Start,
		To:       window.End,
	})
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("query window transactions: %w", err)
	}

	st.PeriodStart = window.Start
	st.PeriodEnd = window.End
	st.Spent = core.SpendInWindow(limit.Category, window, txns)
	st.Percentage = core.Percentage(st.Spent, limit.Limit)
	return st, nil
}

// ListBudgetStatuses computes the status of every budget the owner has.
func (s *BudgetService) ListBudgetStatuses(ctx context.Context, ownerID string, now time.Time) ([]BudgetStatus, error) {
	limits, err := s.store.ListLimits(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	out := make([]BudgetStatus, 0, len(limits))
	for _, limit := range limits {
		st, err := s.status(ctx, limit, now)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// MonthOverview aggregates one calendar month of transactions for the
// dashboard: totals, essential/lifestyle split, per-category rows.
func (s *BudgetService) MonthOverview(ctx context.Context, ownerID string, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, fmt.Errorf("invalid month %d", month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	txns, err := s.store.Query(ctx, ownerID, store.TransactionFilter{From: from, To: to})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("query month transactions: %w", err)
	}
	return core.SummarizeMonth(year, month, txns), nil
}

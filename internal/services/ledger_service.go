// Package services orchestrates the ledger, budget and goal operations
// across the store and the message queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/store"
)

// Publisher is the queue surface the services need. A nil Publisher disables
// publishing without disabling the operation.
type Publisher interface {
	PublishTransactionSync(ctx context.Context, id string) error
	PublishGoalEvent(ctx context.Context, msg *amqp.GoalEventMessage) error
}

// LedgerService owns balance mutation: every transaction's monetary effect
// goes through here, and balance plus transaction land as one atomic unit.
type LedgerService struct {
	store store.Store
	queue Publisher
}

func NewLedgerService(st store.Store, queue Publisher) *LedgerService {
	return &LedgerService{store: st, queue: queue}
}

// AddTransactionResult reports the stored transaction id and the balance
// after the mutation.
type AddTransactionResult struct {
	TransactionID string
	Balance       core.Balance
	Replayed      bool
}

// AddTransaction validates, applies and persists one transaction. Retries
// carrying the same idempotency key replay the original result instead of
// double-appending. Rejections (validation, insufficient funds) happen before
// any write.
func (s *LedgerService) AddTransaction(ctx context.Context, t core.Transaction) (AddTransactionResult, error) {
	t.Category = core.NormalizeCategory(t.Category)
	if err := t.Validate(); err != nil {
		return AddTransactionResult{}, err
	}

	if t.IdempotencyKey != "" {
		prev, err := s.store.FindByIdempotencyKey(ctx, t.OwnerID, t.IdempotencyKey)
		if err == nil {
			balance, berr := s.store.GetBalance(ctx, t.OwnerID, prev.Method)
			if berr != nil {
				return AddTransactionResult{}, fmt.Errorf("get balance for replay: %w", berr)
			}
			slog.InfoContext(ctx, "Replayed transaction by idempotency key",
				"id", prev.ID, "owner_id", t.OwnerID)
			return AddTransactionResult{TransactionID: prev.ID, Balance: balance, Replayed: true}, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return AddTransactionResult{}, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	balance, err := s.store.GetBalance(ctx, t.OwnerID, t.Method)
	if err != nil {
		return AddTransactionResult{}, fmt.Errorf("get %s balance: %w", t.Method, err)
	}

	newAmount, err := core.ApplyTransaction(balance.Amount, t)
	if err != nil {
		return AddTransactionResult{}, err
	}
	balance.Amount = newAmount

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	id, err := s.store.AppendWithBalance(ctx, t, balance)
	if err != nil {
		return AddTransactionResult{}, fmt.Errorf("append transaction: %w", err)
	}
	balance.Version++

	// Publish async export message; the transaction is durable locally, so a
	// publish failure never fails the request.
	if s.queue != nil {
		if err := s.queue.PublishTransactionSync(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
		}
	}

	return AddTransactionResult{TransactionID: id, Balance: balance}, nil
}

// SetInitialBalance creates the balance record for one payment method. The
// record exists from the first set onward and is never deleted; re-setting
// fails with core.ErrConflict.
func (s *LedgerService) SetInitialBalance(ctx context.Context, ownerID string, method core.PaymentMethod, amount core.Money) (core.Balance, error) {
	if err := method.Validate(); err != nil {
		return core.Balance{}, err
	}
	if amount.IsNegative() {
		return core.Balance{}, core.ErrInvalidAmount
	}
	b := core.Balance{
		OwnerID: ownerID,
		Method:  method,
		Amount:  amount,
		Initial: amount,
	}
	if err := s.store.CreateBalance(ctx, b); err != nil {
		return core.Balance{}, err
	}
	b.Version = 1
	slog.InfoContext(ctx, "Initial balance set",
		"owner_id", ownerID, "method", method, "amount_cents", amount.Cents)
	return b, nil
}

// TransactionQuery narrows ListTransactions. Zero values mean no constraint;
// From/To bound the occurred date inclusively.
type TransactionQuery struct {
	Type     core.TransactionType
	Category string
	From     time.Time
	To       time.Time
}

// ListTransactions returns the owner's transactions matching the query, most
// recent first as the store orders them.
func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string, q TransactionQuery) ([]core.Transaction, error) {
	if ownerID == "" {
		return nil, core.ErrEmptyOwner
	}
	if q.Type != "" {
		if err := q.Type.Validate(); err != nil {
			return nil, err
		}
	}
	filter := store.TransactionFilter{Type: q.Type, From: q.From, To: q.To}
	if q.Category != "" {
		filter.Category = core.NormalizeCategory(q.Category)
	}
	return s.store.Query(ctx, ownerID, filter)
}

// ReconcileReport is the outcome of recomputing one owner's balances from
// the transaction history.
type ReconcileReport struct {
	Card     core.Money
	Wallet   core.Money
	Repaired []core.PaymentMethod
}

// ReconcileBalances recomputes card and wallet from scratch (initial value
// plus signed transaction sum minus goal allocations) and repairs any stored
// balance that drifted. Used as the consistency check and repair entry point.
func (s *LedgerService) ReconcileBalances(ctx context.Context, ownerID string) (ReconcileReport, error) {
	txns, err := s.store.Query(ctx, ownerID, store.TransactionFilter{})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("query transactions: %w", err)
	}

	var report ReconcileReport
	for _, method := range []core.PaymentMethod{core.Card, core.Wallet} {
		balance, err := s.store.GetBalance(ctx, ownerID, method)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return ReconcileReport{}, fmt.Errorf("get %s balance: %w", method, err)
		}

		expected := core.Reconcile(balance.Initial, balance.Allocated, method, txns)
		if expected.Cents != balance.Amount.Cents {
			slog.WarnContext(ctx, "Balance drift detected",
				"owner_id", ownerID,
				"method", method,
				"stored_cents", balance.Amount.Cents,
				"expected_cents", expected.Cents)
			balance.Amount = expected
			if err := s.store.PutBalance(ctx, balance); err != nil {
				return ReconcileReport{}, fmt.Errorf("repair %s balance: %w", method, err)
			}
			report.Repaired = append(report.Repaired, method)
		}

		switch method {
		case core.Card:
			report.Card = expected
		case core.Wallet:
			report.Wallet = expected
		}
	}
	return report, nil
}

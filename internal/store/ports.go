// Package store defines the persistence contracts the engine depends on.
// Adapters (sqlite, memory) implement these ports; the services layer never
// touches a database directly.
package store

import (
	"context"
	"time"

	"tally/internal/core"
)

// TransactionFilter narrows a Query. Zero values mean "no constraint".
// Category is matched in canonical normalized form; From/To bound the
// occurred date inclusively.
type TransactionFilter struct {
	Type     core.TransactionType
	Category string
	From     time.Time
	To       time.Time
}

type (
	// TransactionStore is the append-only transaction collection. Queries are
	// finite and restartable; re-querying is safe and idempotent.
	TransactionStore interface {
		// Append stores the transaction and returns its assigned id.
		Append(ctx context.Context, t core.Transaction) (string, error)
		// Query returns all transactions for the owner matching the filter.
		Query(ctx context.Context, ownerID string, f TransactionFilter) ([]core.Transaction, error)
		// GetTransaction returns one transaction by id.
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// FindByIdempotencyKey returns the transaction previously appended
		// under the key, or core.ErrNotFound.
		FindByIdempotencyKey(ctx context.Context, ownerID, key string) (core.Transaction, error)
	}

	BalanceStore interface {
		GetBalance(ctx context.Context, ownerID string, m core.PaymentMethod) (core.Balance, error)
		// CreateBalance inserts the initial balance row; core.ErrConflict if
		// one already exists for the owner+method.
		CreateBalance(ctx context.Context, b core.Balance) error
		// PutBalance writes the balance with a compare-and-swap on Version;
		// core.ErrConflict when the stored version moved underneath.
		PutBalance(ctx context.Context, b core.Balance) error
	}

	BudgetStore interface {
		UpsertLimit(ctx context.Context, b core.BudgetLimit) error
		GetLimit(ctx context.Context, ownerID, category string) (core.BudgetLimit, error)
		ListLimits(ctx context.Context, ownerID string) ([]core.BudgetLimit, error)
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.SavingsGoal) error
		GetGoal(ctx context.Context, id string) (core.SavingsGoal, error)
		GetGoalByName(ctx context.Context, ownerID, name string) (core.SavingsGoal, error)
		ListGoals(ctx context.Context, ownerID string) ([]core.SavingsGoal, error)
		// UpdateGoal writes the goal with a compare-and-swap on Version.
		UpdateGoal(ctx context.Context, g core.SavingsGoal) error
	}

	// Ledger groups the multi-record writes that must land as one unit: no
	// reader may ever observe a transaction without its balance delta, or an
	// allocation applied to only one of balance and goal.
	Ledger interface {
		// AppendWithBalance appends the transaction and writes the updated
		// balance atomically. The balance carries the version read before the
		// mutation; core.ErrConflict signals a lost race and nothing is
		// written.
		AppendWithBalance(ctx context.Context, t core.Transaction, b core.Balance) (string, error)
		// ApplyAllocation writes the post-allocation balance and goal
		// atomically, both under version compare-and-swap.
		ApplyAllocation(ctx context.Context, b core.Balance, g core.SavingsGoal) error
	}

	// Store is the full persistence surface the services wire against.
	Store interface {
		TransactionStore
		BalanceStore
		BudgetStore
		GoalStore
		Ledger
	}
)

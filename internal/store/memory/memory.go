// Package memory is an in-process Store used by tests and the memory
// backend. It honors the same version compare-and-swap and atomicity
// contracts as the sqlite adapter.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/store"
)

type Store struct {
	mu sync.Mutex

	txns     []core.Transaction
	txByID   map[string]int
	txByKey  map[string]string // owner/key -> transaction id
	balances map[string]core.Balance
	budgets  map[string]core.BudgetLimit
	goals    map[string]core.SavingsGoal
	goalName map[string]string // owner/name -> goal id
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		txByID:   make(map[string]int),
		txByKey:  make(map[string]string),
		balances: make(map[string]core.Balance),
		budgets:  make(map[string]core.BudgetLimit),
		goals:    make(map[string]core.SavingsGoal),
		goalName: make(map[string]string),
	}
}

func balanceKey(ownerID string, m core.PaymentMethod) string {
	return ownerID + "/" + string(m)
}

func scopedKey(ownerID, k string) string {
	return ownerID + "/" + k
}

func (s *Store) Append(ctx context.Context, t core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(t)
}

func (s *Store) appendLocked(t core.Transaction) (string, error) {
	if t.Amount.Cents < 0 {
		return "", core.ErrInvalidAmount
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.txByID[t.ID] = len(s.txns)
	s.txns = append(s.txns, t)
	if t.IdempotencyKey != "" {
		s.txByKey[scopedKey(t.OwnerID, t.IdempotencyKey)] = t.ID
	}
	return t.ID, nil
}

func (s *Store) Query(ctx context.Context, ownerID string, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catKey := core.NormalizeCategory(f.Category)
	var out []core.Transaction
	for _, t := range s.txns {
		if t.OwnerID != ownerID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && core.NormalizeCategory(t.Category) != catKey {
			continue
		}
		day := t.OccurredAt.Truncate()
		if !f.From.IsZero() && day.Before(core.DateOf(f.From).Truncate()) {
			continue
		}
		if !f.To.IsZero() && day.After(core.DateOf(f.To).Truncate()) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.txByID[id]; ok {
		return s.txns[i], nil
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.txByKey[scopedKey(ownerID, key)]; ok {
		return s.txns[s.txByID[id]], nil
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) GetBalance(ctx context.Context, ownerID string, m core.PaymentMethod) (core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[balanceKey(ownerID, m)]; ok {
		return b, nil
	}
	return core.Balance{}, core.ErrNotFound
}

func (s *Store) CreateBalance(ctx context.Context, b core.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := balanceKey(b.OwnerID, b.Method)
	if _, ok := s.balances[k]; ok {
		return core.ErrConflict
	}
	b.Version = 1
	s.balances[k] = b
	return nil
}

func (s *Store) PutBalance(ctx context.Context, b core.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putBalanceLocked(b)
}

func (s *Store) putBalanceLocked(b core.Balance) error {
	k := balanceKey(b.OwnerID, b.Method)
	cur, ok := s.balances[k]
	if !ok {
		return core.ErrNotFound
	}
	if cur.Version != b.Version {
		return core.ErrConflict
	}
	b.Version++
	s.balances[k] = b
	return nil
}

func (s *Store) UpsertLimit(ctx context.Context, b core.BudgetLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Category = core.NormalizeCategory(b.Category)
	s.budgets[scopedKey(b.OwnerID, b.Category)] = b
	return nil
}

func (s *Store) GetLimit(ctx context.Context, ownerID, category string) (core.BudgetLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.budgets[scopedKey(ownerID, core.NormalizeCategory(category))]; ok {
		return b, nil
	}
	return core.BudgetLimit{}, core.ErrNotFound
}

func (s *Store) ListLimits(ctx context.Context, ownerID string) ([]core.BudgetLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetLimit
	for k, b := range s.budgets {
		if strings.HasPrefix(k, ownerID+"/") {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nk := scopedKey(g.OwnerID, g.Name)
	if _, ok := s.goalName[nk]; ok {
		return core.ErrConflict
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Version = 1
	s.goals[g.ID] = g
	s.goalName[nk] = g.ID
	return nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.goals[id]; ok {
		return g, nil
	}
	return core.SavingsGoal{}, core.ErrNotFound
}

func (s *Store) GetGoalByName(ctx context.Context, ownerID, name string) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.goalName[scopedKey(ownerID, name)]; ok {
		return s.goals[id], nil
	}
	return core.SavingsGoal{}, core.ErrNotFound
}

func (s *Store) ListGoals(ctx context.Context, ownerID string) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SavingsGoal
	for _, g := range s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) UpdateGoal(ctx context.Context, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateGoalLocked(g)
}

func (s *Store) updateGoalLocked(g core.SavingsGoal) error {
	cur, ok := s.goals[g.ID]
	if !ok {
		return core.ErrNotFound
	}
	if cur.Version != g.Version {
		return core.ErrConflict
	}
	g.Version++
	s.goals[g.ID] = g
	return nil
}

// AppendWithBalance holds the lock across both writes so no reader observes
// one without the other, matching the sqlite adapter's transaction.
func (s *Store) AppendWithBalance(ctx context.Context, t core.Transaction, b core.Balance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putBalanceLocked(b); err != nil {
		return "", err
	}
	return s.appendLocked(t)
}

func (s *Store) ApplyAllocation(ctx context.Context, b core.Balance, g core.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev := s.balances[balanceKey(b.OwnerID, b.Method)]
	if err := s.putBalanceLocked(b); err != nil {
		return err
	}
	if err := s.updateGoalLocked(g); err != nil {
		// Roll the balance back; memory writes are cheap to undo.
		if hadPrev {
			s.balances[balanceKey(b.OwnerID, b.Method)] = prev
		}
		return err
	}
	return nil
}

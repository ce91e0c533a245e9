package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/store"
)

// GoalService owns savings goals: creation, allocation from a balance, and
// the one-time terminal notifications.
type GoalService struct {
	store store.Store
	queue Publisher
}

func NewGoalService(st store.Store, queue Publisher) *GoalService {
	return &GoalService{store: st, queue: queue}
}

// CreateGoal stores a new goal under a synthetic id. The name stays unique
// per owner for lookup but is only a display attribute.
func (s *GoalService) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Current = core.Money{}
	g.CreatedAt = time.Now().UTC()
	if err := s.store.CreateGoal(ctx, g); err != nil {
		return core.SavingsGoal{}, err
	}
	g.Version = 1
	slog.InfoContext(ctx, "Savings goal created",
		"goal_id", g.ID,
		"owner_id", g.OwnerID,
		"target_cents", g.Target.Cents)
	return g, nil
}

// AllocationOutcome reports what an allocation actually did: how much moved,
// how much stayed with the source balance, and the updated records.
type AllocationOutcome struct {
	Balance   core.Balance
	Goal      core.SavingsGoal
	Allocated core.Money
	Leftover  core.Money
	Status    core.GoalStatus
}

// AllocateToGoal moves funds from the method's balance into the goal,
// clamped at the goal's remaining target; the excess never leaves the
// balance and is reported as leftover. Balance and goal are written as one
// atomic unit. A terminal status reached by the allocation fires its
// notification exactly once.
func (s *GoalService) AllocateToGoal(ctx context.Context, ownerID, goalID string, method core.PaymentMethod, amount core.Money) (AllocationOutcome, error) {
	if err := method.Validate(); err != nil {
		return AllocationOutcome{}, err
	}

	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return AllocationOutcome{}, fmt.Errorf("get goal: %w", err)
	}
	if goal.OwnerID != ownerID {
		return AllocationOutcome{}, core.ErrNotFound
	}
	balance, err := s.store.GetBalance(ctx, ownerID, method)
	if err != nil {
		return AllocationOutcome{}, fmt.Errorf("get %s balance: %w", method, err)
	}

	result, err := core.Allocate(balance, goal, amount)
	if err != nil {
		return AllocationOutcome{}, err
	}

	status := core.ClassifyGoal(result.Goal, time.Now())
	updated := result.Goal
	var event *amqp.GoalEventMessage
	if status.Terminal() {
		if flagged, fresh := markNotified(&updated, status); flagged && fresh {
			event = amqp.NewGoalEventMessage(updated.ID, updated.OwnerID, updated.Name, string(status))
		}
	}

	if err := s.store.ApplyAllocation(ctx, result.Balance, updated); err != nil {
		return AllocationOutcome{}, fmt.Errorf("apply allocation: %w", err)
	}
	result.Balance.Version++
	updated.Version++

	if result.Leftover.Cents > 0 {
		slog.InfoContext(ctx, "Allocation clamped at goal target",
			"goal_id", goal.ID,
			"allocated_cents", result.Allocated.Cents,
			"leftover_cents", result.Leftover.Cents)
	}

	if event != nil && s.queue != nil {
		// Flag already persisted; a lost publish loses one notification, not
		// money.
		if err := s.queue.PublishGoalEvent(ctx, event); err != nil {
			slog.ErrorContext(ctx, "Failed to publish goal event",
				"goal_id", updated.ID, "condition", event.Condition, "error", err)
		}
	}

	return AllocationOutcome{
		Balance:   result.Balance,
		Goal:      updated,
		Allocated: result.Allocated,
		Leftover:  result.Leftover,
		Status:    status,
	}, nil
}

// markNotified flips the flag for a terminal status. Returns whether the
// status carries a flag and whether this call freshly set it.
func markNotified(g *core.SavingsGoal, status core.GoalStatus) (flagged, fresh bool) {
	switch status {
	case core.GoalCompleted:
		fresh = !g.CompletedNotified
		g.CompletedNotified = true
		return true, fresh
	case core.GoalSurpassed:
		fresh = !g.SurpassedNotified
		g.SurpassedNotified = true
		return true, fresh
	case core.GoalMissedDeadline:
		fresh = !g.MissedNotified
		g.MissedNotified = true
		return true, fresh
	}
	return false, false
}

// GoalList partitions an owner's goals for display. Surpassed goals sit with
// completed ones.
type GoalList struct {
	Active    []core.SavingsGoal
	Completed []core.SavingsGoal
}

// ListGoals returns the owner's goals partitioned by status, firing any
// pending missed-deadline notifications discovered on the way. Completed
// goals persist; there is no auto-delete.
func (s *GoalService) ListGoals(ctx context.Context, ownerID string, now time.Time) (GoalList, error) {
	goals, err := s.store.ListGoals(ctx, ownerID)
	if err != nil {
		return GoalList{}, fmt.Errorf("list goals: %w", err)
	}

	var list GoalList
	for _, g := range goals {
		status := core.ClassifyGoal(g, now)

		if status.Terminal() {
			updated := g
			if flagged, fresh := markNotified(&updated, status); flagged && fresh {
				if err := s.store.UpdateGoal(ctx, updated); err != nil {
					// A racing writer already advanced the goal; its
					// notification wins.
					slog.WarnContext(ctx, "Skipped goal notification after version conflict",
						"goal_id", g.ID, "condition", status, "error", err)
				} else if s.queue != nil {
					msg := amqp.NewGoalEventMessage(g.ID, g.OwnerID, g.Name, string(status))
					if err := s.queue.PublishGoalEvent(ctx, msg); err != nil {
						slog.ErrorContext(ctx, "Failed to publish goal event",
							"goal_id", g.ID, "condition", status, "error", err)
					}
				}
			}
		}

		if status.Reached() {
			list.Completed = append(list.Completed, g)
		} else {
			list.Active = append(list.Active, g)
		}
	}
	return list, nil
}

package core

import "time"

// AllocationResult is the outcome of moving money from a balance into a goal.
// Allocated plus Leftover always equals the requested amount; only Allocated
// ever leaves the balance.
type AllocationResult struct {
	Balance   Balance
	Goal      SavingsGoal
	Allocated Money
	Leftover  Money
}

// Allocate moves requested funds from the balance into the goal, capped at
// the goal's remaining target. The excess stays with the source balance and
// is reported as Leftover so the caller can surface it. A request larger than
// the balance fails with ErrInsufficientFunds before anything changes.
func Allocate(balance Balance, goal SavingsGoal, requested Money) (AllocationResult, error) {
	if requested.Cents <= 0 {
		return AllocationResult{}, ErrInvalidAmount
	}
	if requested.Cents > balance.Amount.Cents {
		return AllocationResult{}, ErrInsufficientFunds
	}

	remaining := goal.Target.Sub(goal.Current)
	if remaining.Cents < 0 {
		remaining = Money{}
	}
	allocated := requested
	if allocated.Cents > remaining.Cents {
		allocated = remaining
	}

	goal.Current = goal.Current.Add(allocated)
	balance.Amount = balance.Amount.Sub(allocated)
	balance.Allocated = balance.Allocated.Add(allocated)

	return AllocationResult{
		Balance:   balance,
		Goal:      goal,
		Allocated: allocated,
		Leftover:  requested.Sub(allocated),
	}, nil
}

// ClassifyGoal derives the goal's status from its amounts and deadline.
// Idempotent; calling it twice with the same inputs yields the same status.
// Current above Target only happens through external mutation, which the
// engine does not assume away, so it is classified rather than rejected.
func ClassifyGoal(g SavingsGoal, now time.Time) GoalStatus {
	switch {
	case g.Current.Cents > g.Target.Cents:
		return GoalSurpassed
	case g.Current.Cents == g.Target.Cents:
		return GoalCompleted
	case !g.Deadline.IsEmpty() && DateOf(now).Truncate().After(g.Deadline.Truncate()):
		return GoalMissedDeadline
	}
	return GoalActive
}

// Reached reports whether the goal has hit or passed its target.
func (s GoalStatus) Reached() bool {
	return s == GoalCompleted || s == GoalSurpassed
}

// Terminal reports whether the status should fire a one-time notification.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalSurpassed || s == GoalMissedDeadline
}

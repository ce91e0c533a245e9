package core

// ApplyTransaction computes the balance after one transaction. Income adds,
// expense subtracts; an expense larger than the balance fails with
// ErrInsufficientFunds and leaves the input untouched.
func ApplyTransaction(balance Money, t Transaction) (Money, error) {
	if t.Amount.Cents < 0 {
		return balance, ErrInvalidAmount
	}
	switch t.Type {
	case Income:
		return balance.Add(t.Amount), nil
	case Expense:
		if t.Amount.Cents > balance.Cents {
			return balance, ErrInsufficientFunds
		}
		return balance.Sub(t.Amount), nil
	}
	return balance, ErrInvalidType
}

// SignedAmount is the transaction's effect on a balance: positive for income,
// negative for expense.
func SignedAmount(t Transaction) Money {
	if t.Type == Expense {
		return Money{Cents: -t.Amount.Cents}
	}
	return t.Amount
}

// Reconcile recomputes a balance from scratch: initial value plus the signed
// sum of every transaction on the given method, minus the total drawn into
// goals. The stored balance must always equal this fold; anything else is
// drift.
func Reconcile(initial Money, allocated Money, method PaymentMethod, txns []Transaction) Money {
	total := initial
	for _, t := range txns {
		if t.Method != method {
			continue
		}
		total = total.Add(SignedAmount(t))
	}
	return total.Sub(allocated)
}

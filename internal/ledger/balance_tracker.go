package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// CheckBatch reports whether applying batch would leave any user or system
// account negative. External boundary accounts are allowed to go negative.
func (bt *BalanceTracker) CheckBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	for key, delta := range batch.Deltas() {
		if key.Scope == AccountScopeExternal {
			continue
		}
		if after := bt.balances[key] + delta; after < 0 {
			return &InsufficientBalanceError{
				Account:  key,
				Have:     bt.balances[key],
				Required: -delta,
			}
		}
	}
	return nil
}

// InsufficientBalanceError is returned by CheckBatch.
type InsufficientBalanceError struct {
	Account  AccountKey
	Have     int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in %s: have=%d, need=%d",
		e.Account.AccountPath(), e.Have, e.Required)
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetUserAvailableBalance returns free collateral.
func (bt *BalanceTracker) GetUserAvailableBalance(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral))
}

// GetUserMarginBalance returns collateral posted across the user's positions.
func (bt *BalanceTracker) GetUserMarginBalance(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeMargin))
}

// GetUserTotalBalance returns collateral + margin
func (bt *BalanceTracker) GetUserTotalBalance(userID uuid.UUID) int64 {
	return bt.GetUserAvailableBalance(userID) + bt.GetUserMarginBalance(userID)
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances (used during snapshot recovery)
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}

package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserNonNegative checks user collateral and margin >= 0
func (v *InvariantValidator) ValidateUserNonNegative(userID uuid.UUID) error {
	if err := v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeCollateral)); err != nil {
		return err
	}
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeMargin))
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateMirror checks that a system account agrees with the value the
// domain state holds for it (vault balance, fee pools, posted margin).
func (v *InvariantValidator) ValidateMirror(key AccountKey, expected int64) error {
	if got := v.tracker.GetBalance(key); got != expected {
		return fmt.Errorf("account %s is %d, state expects %d", key.AccountPath(), got, expected)
	}
	return nil
}

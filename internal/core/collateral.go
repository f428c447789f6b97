package core

import (
	"fmt"

	"PerpVault/internal/event"
	"PerpVault/internal/state"
)

// Deposits are credited by the custody bridge, which runs as the governor.
func (e *Engine) applyDeposit(tx *txn, cmd *event.CollateralDeposit) error {
	if cmd.Caller != tx.store.Governor() {
		return fmt.Errorf("%w: deposits are credited by custody only", ErrUnauthorized)
	}
	if cmd.Amount <= 0 {
		return fmt.Errorf("%w: deposit %d", ErrInvalidAmount, cmd.Amount)
	}
	tx.gen.Deposit(cmd.Account, int64(cmd.Amount))
	return nil
}

func (e *Engine) applyWithdrawal(tx *txn, cmd *event.CollateralWithdrawal) error {
	if !state.CanActFor(tx.store, cmd.Account, cmd.Caller) {
		return fmt.Errorf("%w: %s cannot withdraw for %s", ErrUnauthorized, cmd.Caller, cmd.Account)
	}
	if cmd.Amount <= 0 {
		return fmt.Errorf("%w: withdrawal %d", ErrInvalidAmount, cmd.Amount)
	}
	if have := tx.collateral(cmd.Account); have < cmd.Amount {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCollateral, cmd.Amount, have)
	}
	tx.gen.Withdraw(cmd.Account, int64(cmd.Amount))
	return nil
}

package core

import (
	"fmt"

	"PerpVault/internal/event"
	"PerpVault/internal/state"
)

func requireGovernor(s state.LedgerStore, h *event.Header) error {
	if h.Caller != s.Governor() {
		return fmt.Errorf("%w: %s is not the governor", ErrUnauthorized, h.Caller)
	}
	return nil
}

func (e *Engine) applyProductUpsert(tx *txn, cmd *event.ProductUpsert) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	if cmd.Product == 0 {
		return fmt.Errorf("%w: product id 0 is reserved", ErrInvalidConfig)
	}
	if err := state.ValidateProduct(cmd.Config); err != nil {
		return fmt.Errorf("%w: product %d: %v", ErrInvalidConfig, cmd.Product, err)
	}
	tx.cs.PutProduct(state.Product{ID: cmd.Product, ProductConfig: cmd.Config})
	return nil
}

func (e *Engine) applyParameters(tx *txn, cmd *event.ParametersUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	if err := state.ValidateParams(cmd.Params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	tx.cs.SetParams(cmd.Params)
	return nil
}

func (e *Engine) applyLiquidationThreshold(tx *txn, cmd *event.LiquidationThresholdUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	p, ok := tx.store.Product(cmd.Product)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, cmd.Product)
	}
	p.LiquidationThreshold = cmd.Threshold
	if err := state.ValidateProduct(p.ProductConfig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	tx.cs.PutProduct(p)
	return nil
}

func (e *Engine) applyMinMargin(tx *txn, cmd *event.MinMarginUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	params := tx.store.Params()
	params.MinMargin = cmd.MinMargin
	if err := state.ValidateParams(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	tx.cs.SetParams(params)
	return nil
}

func (e *Engine) applyVaultConfig(tx *txn, cmd *event.VaultConfigUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	if cmd.Cap < 0 || cmd.Cooldown < 0 {
		return fmt.Errorf("%w: cap %d cooldown %d", ErrInvalidConfig, cmd.Cap, cmd.Cooldown)
	}
	v := tx.store.Vault()
	v.Cap, v.Cooldown = cmd.Cap, cmd.Cooldown
	tx.cs.SetVault(v)
	return nil
}

func (e *Engine) applyManager(tx *txn, cmd *event.ManagerUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	tx.cs.SetManager(cmd.Manager, cmd.Enabled)
	return nil
}

func (e *Engine) applyLiquidator(tx *txn, cmd *event.LiquidatorUpdate) error {
	if err := requireGovernor(tx.store, &cmd.Header); err != nil {
		return err
	}
	tx.cs.SetLiquidator(cmd.Liquidator, cmd.Enabled)
	return nil
}

// The caller approves (or revokes) a manager for its own account. The
// manager also needs the governor's flag before it can act.
func (e *Engine) applyAccountManager(tx *txn, cmd *event.AccountManagerApproval) error {
	if cmd.Manager == cmd.Caller {
		return fmt.Errorf("%w: cannot approve self", ErrInvalidConfig)
	}
	tx.cs.SetAccountManager(cmd.Caller, cmd.Manager, cmd.Approved)
	return nil
}

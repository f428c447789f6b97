package core

import (
	"fmt"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"
)

// applyLiquidation force-closes a position whose equity has fallen to its
// product's threshold. The trader forfeits exactly the posted margin: pending
// funding goes to the vault fee pool, the liquidator earns a bounty on any
// remaining equity and the vault keeps the rest. No acceptable-price bound
// applies.
func (e *Engine) applyLiquidation(tx *txn, cmd *event.LiquidatePosition) error {
	s := tx.store
	if !state.CanLiquidate(s, cmd.Caller) {
		return fmt.Errorf("%w: %s is not a liquidator", ErrUnauthorized, cmd.Caller)
	}
	key := state.PositionKey{Owner: cmd.Owner, ProductID: cmd.Product, IsLong: cmd.IsLong}
	pos, ok := s.Position(key.ID())
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, key.ID())
	}
	product, ok := s.Product(pos.ProductID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, pos.ProductID)
	}
	if cmd.MarkPrice < 0 {
		return fmt.Errorf("%w: mark %d", ErrInvalidPrice, cmd.MarkPrice)
	}
	mark := cmd.MarkPrice
	if mark == 0 {
		var err error
		if mark, err = oraclePrice(s, product.Feed); err != nil {
			return err
		}
	}

	health, err := state.CheckMarginHealth(&pos, mark, product.LiquidationThreshold)
	if err != nil {
		return err
	}
	if health.Status != state.MarginStatusLiquidatable {
		return fmt.Errorf("%w: equity %s above %s of margin %s",
			ErrNotLiquidatable, health.Equity, product.LiquidationThreshold, pos.Margin)
	}

	funding, err := pendingFunding(s, &pos, tx.now)
	if err != nil {
		return err
	}
	funding = min(funding, pos.Margin)
	reward := max(health.Equity, 0).MulBPS(s.Params().LiquidationBounty)
	reward = min(reward, pos.Margin-funding)

	notional, err := pos.Notional()
	if err != nil {
		return err
	}
	vault := s.Vault()
	vault.Balance += pos.Margin - funding - reward
	tx.cs.SetVault(vault)
	tx.cs.SetOpenInterest(product.ID, s.OpenInterest(product.ID).Adjust(pos.IsLong, -notional))
	tx.cs.SetFeePools(s.FeePools().Add(state.FeeSplit{}, funding))
	tx.cs.DeletePosition(pos.ID)

	tx.gen.Liquidate(pos.Owner, cmd.Caller, int64(pos.Margin), int64(funding), int64(reward))

	tx.emit(&event.PositionClosed{
		PositionID:       pos.ID,
		Owner:            pos.Owner,
		ProductID:        pos.ProductID,
		IsLong:           pos.IsLong,
		Price:            mark,
		EntryPrice:       pos.Price,
		Margin:           pos.Margin,
		Leverage:         pos.Leverage,
		Funding:          funding,
		PnL:              -pos.Margin,
		Liquidated:       true,
		Liquidator:       cmd.Caller,
		LiquidatorReward: reward,
	})
	return nil
}

// Liquidatable reports whether the position on key could be liquidated at
// mark (0 = oracle). Used by keepers to scan without submitting commands.
func (e *Engine) Liquidatable(key state.PositionKey, mark fpmath.Price) (state.MarginHealth, error) {
	pos, ok := e.store.Position(key.ID())
	if !ok {
		return state.MarginHealth{}, ErrPositionNotFound
	}
	product, ok := e.store.Product(pos.ProductID)
	if !ok {
		return state.MarginHealth{}, ErrUnknownProduct
	}
	if mark == 0 {
		var err error
		if mark, err = oraclePrice(e.store, product.Feed); err != nil {
			return state.MarginHealth{}, err
		}
	}
	return state.CheckMarginHealth(&pos, mark, product.LiquidationThreshold)
}

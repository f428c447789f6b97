package core

import (
	"fmt"

	"PerpVault/internal/event"
	"PerpVault/internal/state"
)

// Oracle and rate updates are trusted inputs from the feed subjects; they
// carry no caller.

func (e *Engine) applyOraclePrice(tx *txn, cmd *event.OraclePriceUpdate) error {
	if cmd.Feed == "" {
		return fmt.Errorf("%w: empty feed", ErrInvalidConfig)
	}
	if cmd.Price <= 0 {
		return fmt.Errorf("%w: %s=%d", ErrInvalidPrice, cmd.Feed, cmd.Price)
	}
	last, seen := tx.store.OraclePrice(cmd.Feed)
	if err := e.feeds.Check(pricePartition(cmd.Feed), last.Sequence, seen, cmd.PriceSequence); err != nil {
		return err
	}
	tx.cs.SetPrice(cmd.Feed, state.PriceMark{
		Price:     cmd.Price,
		Sequence:  cmd.PriceSequence,
		Timestamp: tx.now,
	})
	return nil
}

func (e *Engine) applyInterestRate(tx *txn, cmd *event.InterestRateUpdate) error {
	if _, ok := tx.store.Product(cmd.Product); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, cmd.Product)
	}
	if cmd.Rate < 0 {
		return fmt.Errorf("%w: rate %d", ErrInvalidConfig, cmd.Rate)
	}
	last, seen := tx.store.InterestRate(cmd.Product)
	if err := e.feeds.Check(ratePartition(cmd.Product), last.EpochID, seen, cmd.EpochID); err != nil {
		return err
	}
	tx.cs.SetRate(cmd.Product, state.RateMark{
		Rate:      cmd.Rate,
		EpochID:   cmd.EpochID,
		Timestamp: tx.now,
	})
	return nil
}

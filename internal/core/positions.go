package core

import (
	"fmt"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
)

func (e *Engine) applyOpen(tx *txn, cmd *event.OpenPosition) error {
	s := tx.store
	if !state.CanActFor(s, cmd.Owner, cmd.Caller) {
		return fmt.Errorf("%w: %s cannot trade for %s", ErrUnauthorized, cmd.Caller, cmd.Owner)
	}
	product, err := activeProduct(s, cmd.Product)
	if err != nil {
		return err
	}
	params := s.Params()

	if cmd.Margin <= 0 {
		return fmt.Errorf("%w: margin %d", ErrInvalidAmount, cmd.Margin)
	}
	if cmd.Margin < params.MinMargin {
		return fmt.Errorf("%w: margin %s below minimum %s", ErrInsufficientMargin, cmd.Margin, params.MinMargin)
	}
	if cmd.Leverage < fpmath.OneX || cmd.Leverage > product.MaxLeverage {
		return fmt.Errorf("%w: %s not in [1x, %s]", ErrLeverageOutOfBounds, cmd.Leverage, product.MaxLeverage)
	}
	if cmd.AcceptablePrice <= 0 {
		return fmt.Errorf("%w: acceptable price %d", ErrInvalidPrice, cmd.AcceptablePrice)
	}

	ref, err := oraclePrice(s, product.Feed)
	if err != nil {
		return err
	}
	notional, err := fpmath.Notional(cmd.Margin, cmd.Leverage)
	if err != nil {
		return fmt.Errorf("notional: %w", err)
	}
	oi := s.OpenInterest(product.ID)
	vault := s.Vault()
	if err := checkExposure(product, params, oi, vault, cmd.IsLong, notional); err != nil {
		return err
	}

	price, err := quote(product, params, oi, vault, cmd.IsLong, notional, ref)
	if err != nil {
		return err
	}
	if err := checkBound(cmd.IsLong, price, cmd.AcceptablePrice); err != nil {
		return err
	}

	fee := notional.MulBPS(product.Fee)
	split := state.SplitFee(fee, params)

	key := state.PositionKey{Owner: cmd.Owner, ProductID: product.ID, IsLong: cmd.IsLong}
	pos, exists := s.Position(key.ID())
	var funding, oldNotional fpmath.Amount
	if exists {
		// Funding accrues on the notional held since the last checkpoint,
		// so it is settled before the size changes.
		if funding, err = pendingFunding(s, &pos, tx.now); err != nil {
			return err
		}
		if oldNotional, err = pos.Notional(); err != nil {
			return err
		}
		leverage, err := fpmath.WeightedLeverage(pos.Margin, pos.Leverage, cmd.Margin, cmd.Leverage)
		if err != nil {
			return fmt.Errorf("leverage: %w", err)
		}
		entry, err := fpmath.HarmonicEntryPrice(oldNotional, pos.Price, notional, price)
		if err != nil {
			return fmt.Errorf("entry price: %w", err)
		}
		pos.Margin += cmd.Margin
		pos.Leverage = leverage
		pos.Price = entry
		pos.Funding += funding
	} else {
		pos = state.Position{
			ID:        key.ID(),
			Owner:     cmd.Owner,
			ProductID: product.ID,
			IsLong:    cmd.IsLong,
			Margin:    cmd.Margin,
			Leverage:  cmd.Leverage,
			Price:     price,
		}
	}
	pos.OraclePrice = ref
	pos.Timestamp = tx.now
	pos.FundingTimestamp = tx.now
	// Open interest carries each position's own notional, which can sit
	// below the leg sum once leverage is averaged.
	newNotional, err := pos.Notional()
	if err != nil {
		return err
	}

	need := cmd.Margin + fee + funding
	if have := tx.collateral(cmd.Owner); have < need {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCollateral, need, have)
	}

	tx.cs.PutPosition(pos)
	tx.cs.SetOpenInterest(product.ID, oi.Adjust(cmd.IsLong, newNotional-oldNotional))
	tx.cs.SetFeePools(s.FeePools().Add(split, funding))
	tx.gen.PostMargin(cmd.Owner, int64(cmd.Margin)).
		ChargeTradeFee(cmd.Owner, int64(split.Protocol), int64(split.Staking), int64(split.Vault)).
		ChargeFunding(cmd.Owner, int64(funding))

	tx.emit(&event.PositionUpdated{
		PositionID:  pos.ID,
		Owner:       pos.Owner,
		ProductID:   pos.ProductID,
		IsLong:      pos.IsLong,
		Price:       pos.Price,
		OraclePrice: ref,
		Margin:      pos.Margin,
		Leverage:    pos.Leverage,
		Fee:         fee,
		Funding:     funding,
	})
	return nil
}

func (e *Engine) applyClose(tx *txn, cmd *event.ClosePosition) error {
	s := tx.store
	id := cmd.PositionID
	if id == uuid.Nil {
		id = state.PositionKey{Owner: cmd.Owner, ProductID: cmd.Product, IsLong: cmd.IsLong}.ID()
	}
	pos, ok := s.Position(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	if !state.CanActFor(s, pos.Owner, cmd.Caller) {
		return fmt.Errorf("%w: %s cannot close for %s", ErrUnauthorized, cmd.Caller, pos.Owner)
	}
	if cmd.Margin <= 0 {
		return fmt.Errorf("%w: close margin %d", ErrInvalidAmount, cmd.Margin)
	}
	if cmd.AcceptablePrice <= 0 {
		return fmt.Errorf("%w: acceptable price %d", ErrInvalidPrice, cmd.AcceptablePrice)
	}
	// Inactive products still accept closes.
	product, ok := s.Product(pos.ProductID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, pos.ProductID)
	}
	params := s.Params()
	ref, err := oraclePrice(s, product.Feed)
	if err != nil {
		return err
	}

	closeMargin := min(cmd.Margin, pos.Margin)
	full := closeMargin == pos.Margin
	notional, err := pos.Notional()
	if err != nil {
		return err
	}
	closeNotional := notional
	if !full {
		v, err := fpmath.MulDiv(int64(notional), int64(closeMargin), int64(pos.Margin), fpmath.RoundDown)
		if err != nil {
			return fmt.Errorf("close notional: %w", err)
		}
		closeNotional = fpmath.Amount(v)
	}

	// Closing a long sells into the short curve and vice versa.
	oi := s.OpenInterest(product.ID)
	vault := s.Vault()
	price, err := quote(product, params, oi, vault, !pos.IsLong, closeNotional, ref)
	if err != nil {
		return err
	}
	if err := checkBound(!pos.IsLong, price, cmd.AcceptablePrice); err != nil {
		return err
	}

	funding, err := pendingFunding(s, &pos, tx.now)
	if err != nil {
		return err
	}
	pnl, err := fpmath.ComputePnL(pos.IsLong, closeNotional, pos.Price, price)
	if err != nil {
		return fmt.Errorf("pnl: %w", err)
	}
	if pnl < -closeMargin {
		pnl = -closeMargin
	}
	if pnl > 0 {
		inWindow, err := withinProfitWindow(&pos, product, params, price, tx.now)
		if err != nil {
			return err
		}
		if inWindow {
			pnl = 0
		}
	}
	if pnl > vault.Balance {
		return fmt.Errorf("%w: profit %s, vault %s", ErrVaultInsolvent, pnl, vault.Balance)
	}

	// Funding then fee come out of what the trader holds after settlement;
	// any shortfall is waived.
	fee := closeNotional.MulBPS(product.Fee)
	avail := tx.collateral(pos.Owner) + closeMargin + pnl
	fundingPaid := min(funding, max(avail, 0))
	avail -= fundingPaid
	feePaid := min(fee, max(avail, 0))
	split := state.SplitFee(feePaid, params)

	entry := pos.Price
	remaining := fpmath.Amount(0)
	if full {
		tx.cs.DeletePosition(pos.ID)
	} else {
		pos.Margin -= closeMargin
		pos.Funding += fundingPaid
		pos.FundingTimestamp = tx.now
		if remaining, err = pos.Notional(); err != nil {
			return err
		}
		tx.cs.PutPosition(pos)
	}
	vault.Balance -= pnl
	tx.cs.SetVault(vault)
	tx.cs.SetOpenInterest(product.ID, oi.Adjust(pos.IsLong, remaining-notional))
	tx.cs.SetFeePools(s.FeePools().Add(split, fundingPaid))

	tx.gen.ReleaseMargin(pos.Owner, int64(closeMargin)).
		SettlePnL(pos.Owner, int64(pnl)).
		ChargeFunding(pos.Owner, int64(fundingPaid)).
		ChargeTradeFee(pos.Owner, int64(split.Protocol), int64(split.Staking), int64(split.Vault))

	tx.emit(&event.PositionClosed{
		PositionID: pos.ID,
		Owner:      pos.Owner,
		ProductID:  pos.ProductID,
		IsLong:     pos.IsLong,
		Price:      price,
		EntryPrice: entry,
		Margin:     closeMargin,
		Leverage:   pos.Leverage,
		Fee:        feePaid,
		Funding:    fundingPaid,
		PnL:        pnl,
	})
	return nil
}

func (e *Engine) applyModifyMargin(tx *txn, cmd *event.ModifyMargin) error {
	s := tx.store
	pos, ok := s.Position(cmd.PositionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, cmd.PositionID)
	}
	if !state.CanActFor(s, pos.Owner, cmd.Caller) {
		return fmt.Errorf("%w: %s cannot modify %s", ErrUnauthorized, cmd.Caller, pos.ID)
	}
	if cmd.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, cmd.Amount)
	}
	product, ok := s.Product(pos.ProductID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, pos.ProductID)
	}
	notional, err := pos.Notional()
	if err != nil {
		return err
	}

	newMargin := pos.Margin
	if cmd.IsIncrease {
		newMargin += cmd.Amount
	} else {
		if cmd.Amount >= pos.Margin {
			return fmt.Errorf("%w: removing %s of %s, close the position instead",
				ErrInsufficientMargin, cmd.Amount, pos.Margin)
		}
		newMargin -= cmd.Amount
	}
	leverage, err := fpmath.LeverageFor(notional, newMargin)
	if err != nil {
		return fmt.Errorf("leverage: %w", err)
	}

	if cmd.IsIncrease {
		if leverage < fpmath.OneX {
			return fmt.Errorf("%w: leverage %s below 1x", ErrLeverageOutOfBounds, leverage)
		}
		if have := tx.collateral(pos.Owner); have < cmd.Amount {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCollateral, cmd.Amount, have)
		}
	} else {
		if leverage > product.MaxLeverage {
			return fmt.Errorf("%w: leverage %s above %s", ErrLeverageOutOfBounds, leverage, product.MaxLeverage)
		}
		mark, err := oraclePrice(s, product.Feed)
		if err != nil {
			return err
		}
		after := pos
		after.Margin, after.Leverage = newMargin, leverage
		health, err := state.CheckMarginHealth(&after, mark, product.LiquidationThreshold)
		if err != nil {
			return err
		}
		if health.Status != state.MarginStatusHealthy {
			return fmt.Errorf("%w: equity %s at threshold after removal", ErrInsufficientMargin, health.Equity)
		}
	}

	pos.Margin, pos.Leverage = newMargin, leverage
	resized, err := pos.Notional()
	if err != nil {
		return err
	}
	tx.cs.PutPosition(pos)
	if resized != notional {
		tx.cs.SetOpenInterest(product.ID, s.OpenInterest(product.ID).Adjust(pos.IsLong, resized-notional))
	}
	if cmd.IsIncrease {
		tx.gen.PostMargin(pos.Owner, int64(cmd.Amount))
	} else {
		tx.gen.ReleaseMargin(pos.Owner, int64(cmd.Amount))
	}

	tx.emit(&event.PositionUpdated{
		PositionID:  pos.ID,
		Owner:       pos.Owner,
		ProductID:   pos.ProductID,
		IsLong:      pos.IsLong,
		Price:       pos.Price,
		OraclePrice: pos.OraclePrice,
		Margin:      pos.Margin,
		Leverage:    pos.Leverage,
	})
	return nil
}

func activeProduct(s state.LedgerStore, id uint32) (state.Product, error) {
	p, ok := s.Product(id)
	if !ok {
		return state.Product{}, fmt.Errorf("%w: %d", ErrUnknownProduct, id)
	}
	if !p.Active {
		return state.Product{}, fmt.Errorf("%w: %d", ErrProductInactive, id)
	}
	return p, nil
}

func oraclePrice(s state.LedgerStore, feed string) (fpmath.Price, error) {
	m, ok := s.OraclePrice(feed)
	if !ok || m.Price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoOraclePrice, feed)
	}
	return m.Price, nil
}

func checkExposure(p state.Product, params state.Params, oi state.OpenInterest, v state.Vault,
	isLong bool, notional fpmath.Amount) error {
	after := oi.Side(isLong) + notional
	if after > p.MaxExposure {
		return fmt.Errorf("%w: %s > max exposure %s", ErrExposureCapExceeded, after, p.MaxExposure)
	}
	if params.ExposureMultiplier > 0 {
		limit, err := fpmath.MulDiv(int64(v.Balance), int64(params.ExposureMultiplier),
			int64(fpmath.FullBPS), fpmath.RoundDown)
		if err != nil {
			return err
		}
		if int64(after) > limit {
			return fmt.Errorf("%w: %s > vault limit %s", ErrExposureCapExceeded, after, fpmath.Amount(limit))
		}
	}
	return nil
}

func quote(p state.Product, params state.Params, oi state.OpenInterest, v state.Vault,
	isLong bool, notional fpmath.Amount, ref fpmath.Price) (fpmath.Price, error) {
	price, err := fpmath.ExecutionPrice(fpmath.PriceInput{
		IsLong:            isLong,
		OpenInterestLong:  oi.Long,
		OpenInterestShort: oi.Short,
		ExposureCap:       p.MaxExposure,
		MaxShift:          params.MaxShift,
		VaultBalance:      v.Balance,
		Reserve:           p.Reserve,
		Notional:          notional,
		ReferencePrice:    ref,
	})
	if err != nil {
		return 0, fmt.Errorf("pricing product %d: %w", p.ID, err)
	}
	return price, nil
}

// checkBound enforces the caller's acceptable price: a buy fails above it,
// a sell below it.
func checkBound(buy bool, price, bound fpmath.Price) error {
	if buy && price > bound {
		return fmt.Errorf("%w: buy at %s above %s", ErrPriceExceedsBound, price, bound)
	}
	if !buy && price < bound {
		return fmt.Errorf("%w: sell at %s below %s", ErrPriceExceedsBound, price, bound)
	}
	return nil
}

func pendingFunding(s state.LedgerStore, pos *state.Position, now int64) (fpmath.Amount, error) {
	rate, ok := s.InterestRate(pos.ProductID)
	if !ok {
		return 0, nil
	}
	fee, err := fpmath.ComputeInterestFee(pos.Margin, pos.Leverage, rate.Rate, now-pos.FundingTimestamp)
	if err != nil {
		return 0, fmt.Errorf("funding: %w", err)
	}
	return fee, nil
}

// withinProfitWindow reports whether a profitable close is too early and
// too small to be paid.
func withinProfitWindow(pos *state.Position, p state.Product, params state.Params,
	exit fpmath.Price, now int64) (bool, error) {
	if now >= pos.Timestamp+params.MinProfitTime {
		return false, nil
	}
	change, err := fpmath.PriceChangeBPS(pos.Price, exit)
	if err != nil {
		return false, err
	}
	return change < p.MinPriceChange, nil
}

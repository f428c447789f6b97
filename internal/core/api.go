package core

import (
	"fmt"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
)

// Typed entry points. Each builds on ProcessEvent and returns the record
// callers usually want.

// OpenPosition opens or increases a position and returns its id.
func (e *Engine) OpenPosition(cmd *event.OpenPosition) (uuid.UUID, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return uuid.Nil, err
	}
	rec, err := recordOf[*event.PositionUpdated](out)
	if err != nil {
		return uuid.Nil, err
	}
	return rec.PositionID, nil
}

// ClosePosition closes cmd.Margin of a position addressed by owner,
// product and side.
func (e *Engine) ClosePosition(cmd *event.ClosePosition) (*event.PositionClosed, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return nil, err
	}
	return recordOf[*event.PositionClosed](out)
}

// ClosePositionWithID closes margin of the position with the given id.
func (e *Engine) ClosePositionWithID(h event.Header, positionID uuid.UUID, margin fpmath.Amount,
	acceptablePrice fpmath.Price) (*event.PositionClosed, error) {
	pos, ok := e.store.Position(positionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	return e.ClosePosition(&event.ClosePosition{
		Header:          h,
		PositionID:      positionID,
		Owner:           pos.Owner,
		Product:         pos.ProductID,
		IsLong:          pos.IsLong,
		Margin:          margin,
		AcceptablePrice: acceptablePrice,
	})
}

// ModifyMargin adds or removes margin without changing notional.
func (e *Engine) ModifyMargin(cmd *event.ModifyMargin) (*event.PositionUpdated, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return nil, err
	}
	return recordOf[*event.PositionUpdated](out)
}

// LiquidatePosition liquidates a position below its threshold.
func (e *Engine) LiquidatePosition(cmd *event.LiquidatePosition) (*event.PositionClosed, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return nil, err
	}
	return recordOf[*event.PositionClosed](out)
}

// Stake moves collateral into the vault and returns the shares minted.
func (e *Engine) Stake(cmd *event.Stake) (fpmath.Amount, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return 0, err
	}
	rec, err := recordOf[*event.Staked](out)
	if err != nil {
		return 0, err
	}
	return rec.Shares, nil
}

// Redeem burns shares and returns the payout.
func (e *Engine) Redeem(cmd *event.Redeem) (fpmath.Amount, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return 0, err
	}
	rec, err := recordOf[*event.Redeemed](out)
	if err != nil {
		return 0, err
	}
	return rec.Payout, nil
}

// ClaimFees drains one pool and returns the amount claimed.
func (e *Engine) ClaimFees(cmd *event.FeeClaim) (fpmath.Amount, error) {
	out, err := e.ProcessEvent(cmd)
	if err != nil {
		return 0, err
	}
	rec, err := recordOf[*event.FeesClaimed](out)
	if err != nil {
		return 0, err
	}
	return rec.Amount, nil
}

func (e *Engine) DepositCollateral(cmd *event.CollateralDeposit) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) WithdrawCollateral(cmd *event.CollateralWithdrawal) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) UpdateOraclePrice(cmd *event.OraclePriceUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) UpdateInterestRate(cmd *event.InterestRateUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) UpsertProduct(cmd *event.ProductUpsert) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetParameters(cmd *event.ParametersUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetLiquidationThreshold(cmd *event.LiquidationThresholdUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetMinMargin(cmd *event.MinMarginUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetVaultConfig(cmd *event.VaultConfigUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetManager(cmd *event.ManagerUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) SetLiquidator(cmd *event.LiquidatorUpdate) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

func (e *Engine) ApproveAccountManager(cmd *event.AccountManagerApproval) error {
	_, err := e.ProcessEvent(cmd)
	return err
}

// --- Reads ---

// GetPosition returns the position on (owner, product, side).
func (e *Engine) GetPosition(owner uuid.UUID, productID uint32, isLong bool) (state.Position, bool) {
	return e.store.Position(state.PositionKey{Owner: owner, ProductID: productID, IsLong: isLong}.ID())
}

// GetPositions returns one entry per id; missing positions come back zero valued.
func (e *Engine) GetPositions(ids []uuid.UUID) []state.Position {
	out := make([]state.Position, len(ids))
	for i, id := range ids {
		out[i], _ = e.store.Position(id)
	}
	return out
}

func (e *Engine) GetVault() state.Vault {
	return e.store.Vault()
}

// GetShare returns the shares held by owner.
func (e *Engine) GetShare(owner uuid.UUID) fpmath.Amount {
	st, _ := e.store.Stake(owner)
	return st.Shares
}

func (e *Engine) GetStake(owner uuid.UUID) (state.Stake, bool) {
	return e.store.Stake(owner)
}

func (e *Engine) GetTotalShare() fpmath.Amount {
	return e.store.Vault().Shares
}

func (e *Engine) GetPendingProtocolReward() fpmath.Amount {
	return e.store.FeePools().Protocol
}

// GetPendingPikaReward returns the staking pool, which funds the
// governance-token stakers.
func (e *Engine) GetPendingPikaReward() fpmath.Amount {
	return e.store.FeePools().Staking
}

func (e *Engine) GetPendingVaultReward() fpmath.Amount {
	return e.store.FeePools().Vault
}

func recordOf[T event.Record](out *CoreOutput) (T, error) {
	for _, r := range out.Records {
		if rec, ok := r.(T); ok {
			return rec, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("no %T record at seq=%d", zero, out.Envelope.Sequence)
}

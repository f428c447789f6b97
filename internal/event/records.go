package event

import (
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// Record is an outbound notification for indexers. Records never feed back
// into core logic.
type Record interface {
	RecordName() string
}

// PositionUpdated is emitted on open, increase and margin changes.
type PositionUpdated struct {
	PositionID  uuid.UUID       `json:"position_id"`
	Owner       uuid.UUID       `json:"owner"`
	ProductID   uint32          `json:"product_id"`
	IsLong      bool            `json:"is_long"`
	Price       fpmath.Price    `json:"price"`        // new entry price
	OraclePrice fpmath.Price    `json:"oracle_price"` // reference price
	Margin      fpmath.Amount   `json:"margin"`       // new total margin
	Leverage    fpmath.Leverage `json:"leverage"`     // new leverage
	Fee         fpmath.Amount   `json:"fee"`          // trading fee charged
	Funding     fpmath.Amount   `json:"funding"`      // funding settled on the prior notional
}

func (*PositionUpdated) RecordName() string { return "position_updated" }

// PositionClosed is emitted on close and liquidation.
type PositionClosed struct {
	PositionID       uuid.UUID       `json:"position_id"`
	Owner            uuid.UUID       `json:"owner"`
	ProductID        uint32          `json:"product_id"`
	IsLong           bool            `json:"is_long"`
	Price            fpmath.Price    `json:"price"`       // exit price
	EntryPrice       fpmath.Price    `json:"entry_price"` // position price before close
	Margin           fpmath.Amount   `json:"margin"`      // margin released
	Leverage         fpmath.Leverage `json:"leverage"`
	Fee              fpmath.Amount   `json:"fee"`
	Funding          fpmath.Amount   `json:"funding"`
	PnL              fpmath.Amount   `json:"pnl"`
	Liquidated       bool            `json:"liquidated"`
	Liquidator       uuid.UUID       `json:"liquidator,omitempty"`
	LiquidatorReward fpmath.Amount   `json:"liquidator_reward,omitempty"`
}

func (*PositionClosed) RecordName() string { return "position_closed" }

// Staked is emitted when collateral enters the vault.
type Staked struct {
	Payer       uuid.UUID     `json:"payer"`
	Beneficiary uuid.UUID     `json:"beneficiary"`
	Amount      fpmath.Amount `json:"amount"`
	Shares      fpmath.Amount `json:"shares"`
}

func (*Staked) RecordName() string { return "staked" }

// Redeemed is emitted when shares are burned.
type Redeemed struct {
	Beneficiary uuid.UUID     `json:"beneficiary"`
	Recipient   uuid.UUID     `json:"recipient"`
	Shares      fpmath.Amount `json:"shares"`
	Payout      fpmath.Amount `json:"payout"`
}

func (*Redeemed) RecordName() string { return "redeemed" }

// FeesClaimed is emitted when a pool is drained.
type FeesClaimed struct {
	Pool   FeePool       `json:"pool"`
	Amount fpmath.Amount `json:"amount"`
}

func (*FeesClaimed) RecordName() string { return "fees_claimed" }

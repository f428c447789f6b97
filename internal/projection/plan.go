package projection

import (
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// Update is everything one committed event changes in the read model.
// Building it is pure so the mapping can be tested without a database.
type Update struct {
	Sequence   int64
	OccurredAt time.Time
	Balances   map[string]int64 // account path -> delta
	Positions  []PositionRow
	Closes     []PositionClose
	Stakes     []StakeDelta
	Trades     []TradeRow
	Funding    []FundingEntry
}

// PositionRow is the full post-event state of an open position.
type PositionRow struct {
	PositionID  uuid.UUID
	Owner       uuid.UUID
	ProductID   uint32
	IsLong      bool
	Margin      fpmath.Amount
	Leverage    fpmath.Leverage
	Price       fpmath.Price
	OraclePrice fpmath.Price
	Funding     fpmath.Amount // settled in this event
}

// PositionClose releases margin from a position; the row is removed once
// nothing is left.
type PositionClose struct {
	PositionID uuid.UUID
	Margin     fpmath.Amount
	Funding    fpmath.Amount
}

// StakeDelta adjusts one depositor's shares.
type StakeDelta struct {
	Owner    uuid.UUID
	Shares   fpmath.Amount // signed
	Staked   fpmath.Amount
	Redeemed fpmath.Amount
}

// TradeRow is one line of trade history.
type TradeRow struct {
	PositionID       uuid.UUID
	Owner            uuid.UUID
	ProductID        uint32
	IsLong           bool
	Action           string
	Price            fpmath.Price
	Margin           fpmath.Amount
	Leverage         fpmath.Leverage
	Fee              fpmath.Amount
	Funding          fpmath.Amount
	PnL              fpmath.Amount
	Liquidator       *uuid.UUID
	LiquidatorReward fpmath.Amount
}

// Trade actions.
const (
	ActionOpen         = "open"
	ActionModifyMargin = "modify_margin"
	ActionClose        = "close"
	ActionLiquidate    = "liquidate"
)

// Plan maps a core output onto projection changes.
func Plan(out core.CoreOutput) Update {
	u := Update{
		Sequence:   out.Envelope.Sequence,
		OccurredAt: out.Envelope.Timestamp.UTC(),
		Balances:   make(map[string]int64),
	}
	if out.Batch != nil {
		for key, delta := range out.Batch.Deltas() {
			if delta != 0 {
				u.Balances[key.AccountPath()] += delta
			}
		}
	}

	for _, r := range out.Records {
		switch rec := r.(type) {
		case *event.PositionUpdated:
			u.Positions = append(u.Positions, PositionRow{
				PositionID:  rec.PositionID,
				Owner:       rec.Owner,
				ProductID:   rec.ProductID,
				IsLong:      rec.IsLong,
				Margin:      rec.Margin,
				Leverage:    rec.Leverage,
				Price:       rec.Price,
				OraclePrice: rec.OraclePrice,
				Funding:     rec.Funding,
			})
			u.Trades = append(u.Trades, TradeRow{
				PositionID: rec.PositionID,
				Owner:      rec.Owner,
				ProductID:  rec.ProductID,
				IsLong:     rec.IsLong,
				Action:     updateAction(out.Envelope.EventType),
				Price:      rec.Price,
				Margin:     rec.Margin,
				Leverage:   rec.Leverage,
				Fee:        rec.Fee,
				Funding:    rec.Funding,
			})
			u.Funding = appendFunding(u.Funding, rec.PositionID, rec.Owner, rec.ProductID, rec.Funding)

		case *event.PositionClosed:
			u.Closes = append(u.Closes, PositionClose{
				PositionID: rec.PositionID,
				Margin:     rec.Margin,
				Funding:    rec.Funding,
			})
			t := TradeRow{
				PositionID: rec.PositionID,
				Owner:      rec.Owner,
				ProductID:  rec.ProductID,
				IsLong:     rec.IsLong,
				Action:     ActionClose,
				Price:      rec.Price,
				Margin:     rec.Margin,
				Leverage:   rec.Leverage,
				Fee:        rec.Fee,
				Funding:    rec.Funding,
				PnL:        rec.PnL,
			}
			if rec.Liquidated {
				liquidator := rec.Liquidator
				t.Action = ActionLiquidate
				t.Liquidator = &liquidator
				t.LiquidatorReward = rec.LiquidatorReward
			}
			u.Trades = append(u.Trades, t)
			u.Funding = appendFunding(u.Funding, rec.PositionID, rec.Owner, rec.ProductID, rec.Funding)

		case *event.Staked:
			u.Stakes = append(u.Stakes, StakeDelta{Owner: rec.Beneficiary, Shares: rec.Shares, Staked: rec.Amount})

		case *event.Redeemed:
			u.Stakes = append(u.Stakes, StakeDelta{Owner: rec.Beneficiary, Shares: -rec.Shares, Redeemed: rec.Payout})
		}
	}
	return u
}

// updateAction labels a position update. Increases arrive as OpenPosition
// commands and share the open label.
func updateAction(et event.EventType) string {
	if et == event.EventTypeModifyMargin {
		return ActionModifyMargin
	}
	return ActionOpen
}

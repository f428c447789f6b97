package state

import (
	"math/big"

	fpmath "PerpVault/internal/math"
)

// MarginStatus represents a position's health against its product threshold
type MarginStatus int

const (
	MarginStatusHealthy MarginStatus = iota
	MarginStatusLiquidatable
)

func (ms MarginStatus) String() string {
	switch ms {
	case MarginStatusHealthy:
		return "Healthy"
	case MarginStatusLiquidatable:
		return "Liquidatable"
	default:
		return "Unknown"
	}
}

// MarginHealth is the result of evaluating a position at a mark price.
type MarginHealth struct {
	UnrealizedPnL fpmath.Amount
	Equity        fpmath.Amount // margin + unrealized PnL; may be negative
	Status        MarginStatus
}

// CheckMarginHealth computes equity = margin + uPnL(mark) and flags the
// position liquidatable when equity <= margin * threshold.
func CheckMarginHealth(pos *Position, mark fpmath.Price, threshold fpmath.BPS) (MarginHealth, error) {
	notional, err := pos.Notional()
	if err != nil {
		return MarginHealth{}, err
	}
	upnl, err := fpmath.ComputePnL(pos.IsLong, notional, pos.Price, mark)
	if err != nil {
		return MarginHealth{}, err
	}

	h := MarginHealth{
		UnrealizedPnL: upnl,
		Equity:        pos.Margin + upnl,
		Status:        MarginStatusHealthy,
	}

	// equity * 1e4 <= margin * threshold, compared without truncation
	lhs := new(big.Int).Mul(big.NewInt(int64(h.Equity)), big.NewInt(int64(fpmath.FullBPS)))
	rhs := new(big.Int).Mul(big.NewInt(int64(pos.Margin)), big.NewInt(int64(threshold)))
	if lhs.Cmp(rhs) <= 0 {
		h.Status = MarginStatusLiquidatable
	}
	return h, nil
}

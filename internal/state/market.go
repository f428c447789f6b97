package state

import fpmath "PerpVault/internal/math"

// PriceMark is the latest oracle price for a feed.
type PriceMark struct {
	Price     fpmath.Price `json:"price"`
	Sequence  int64        `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
}

// RateMark is the latest yearly interest rate for a product.
type RateMark struct {
	Rate      fpmath.BPS `json:"rate"`
	EpochID   int64      `json:"epoch_id"`
	Timestamp int64      `json:"timestamp"`
}

// OpenInterest is the total notional open on each side of a product.
type OpenInterest struct {
	Long  fpmath.Amount `json:"long"`
	Short fpmath.Amount `json:"short"`
}

// Side returns the open interest of one side.
func (oi OpenInterest) Side(isLong bool) fpmath.Amount {
	if isLong {
		return oi.Long
	}
	return oi.Short
}

// Adjust adds delta to one side. A side never goes below zero: closes
// subtract the position's current notional, which may differ from the
// sum of its opens by rounding.
func (oi OpenInterest) Adjust(isLong bool, delta fpmath.Amount) OpenInterest {
	side := &oi.Short
	if isLong {
		side = &oi.Long
	}
	*side += delta
	if *side < 0 {
		*side = 0
	}
	return oi
}

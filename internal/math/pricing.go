// internal/math/pricing.go
package math

import (
	"errors"
	"math/big"
)

var (
	ErrZeroNotional     = errors.New("trade notional must be positive")
	ErrReserveExceeded  = errors.New("trade notional exceeds virtual reserve")
	ErrNoReferencePrice = errors.New("reference price must be positive")
)

// PriceInput is the snapshot the AMM curve prices against.
type PriceInput struct {
	IsLong            bool
	OpenInterestLong  Amount
	OpenInterestShort Amount
	ExposureCap       Amount // product max exposure; scales the shift
	MaxShift          int64  // protocol-wide, 1e8 scale
	VaultBalance      Amount // used as the reserve when Reserve is zero
	Reserve           Amount // virtual liquidity depth
	Notional          Amount // the trade's own notional
	ReferencePrice    Price
}

// Shift returns (oiLong - oiShort) * maxShift / exposureCap, truncated toward zero.
func Shift(oiLong, oiShort, exposureCap Amount, maxShift int64) (int64, error) {
	if exposureCap <= 0 || maxShift == 0 {
		return 0, nil
	}
	imbalance := big.NewInt(int64(oiLong) - int64(oiShort))
	imbalance.Mul(imbalance, big.NewInt(maxShift))
	return DivideInt128(imbalance, int64(exposureCap), RoundDown)
}

// Slippage returns the curve multiplier (1e8 = no slippage) including shift.
func Slippage(in PriceInput) (int64, error) {
	reserve := in.Reserve
	if reserve == 0 {
		reserve = in.VaultBalance
	}
	if in.Notional <= 0 {
		return 0, ErrZeroNotional
	}
	// The short curve r - r²/(r+n) stays finite for any size; only a buy
	// can exhaust the reserve.
	if reserve <= 0 || (in.IsLong && reserve <= in.Notional) {
		return 0, ErrReserveExceeded
	}

	shift, err := Shift(in.OpenInterestLong, in.OpenInterestShort, in.ExposureCap, in.MaxShift)
	if err != nil {
		return 0, err
	}

	r := big.NewInt(int64(reserve))
	n := big.NewInt(int64(in.Notional))
	rSquared := new(big.Int).Mul(r, r)
	scale := big.NewInt(PriceConfig.Scale)

	impact := new(big.Int)
	if in.IsLong {
		// r²/(r-n) - r
		impact.Quo(rSquared, new(big.Int).Sub(r, n))
		impact.Sub(impact, r)
	} else {
		// r - r²/(r+n)
		impact.Quo(rSquared, new(big.Int).Add(r, n))
		impact.Sub(r, impact)
	}
	impact.Mul(impact, scale)
	impact.Quo(impact, n)
	if !impact.IsInt64() {
		return 0, ErrOverflow
	}
	slip := impact.Int64()

	// Shift is applied asymmetrically: the side adding to the imbalance
	// takes the full amount, the side reducing it takes half.
	switch {
	case in.IsLong && shift >= 0:
		slip += shift
	case in.IsLong:
		slip -= (-shift) / 2
	case shift >= 0:
		slip += shift / 2
	default:
		slip += shift
	}
	if slip <= 0 {
		return 0, errors.New("slippage multiplier must be positive")
	}
	return slip, nil
}

// ExecutionPrice returns ceil(reference * slippage / 1e8).
func ExecutionPrice(in PriceInput) (Price, error) {
	if in.ReferencePrice <= 0 {
		return 0, ErrNoReferencePrice
	}
	slip, err := Slippage(in)
	if err != nil {
		return 0, err
	}
	v, err := MulDiv(int64(in.ReferencePrice), slip, PriceConfig.Scale, RoundUp)
	return Price(v), err
}

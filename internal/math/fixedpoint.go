// internal/math/fixedpoint.go
package math

import (
	"errors"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig    = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // oracle and execution prices
	AmountConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // collateral, margin, notional, shares
	LeverageConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 1x = 1e8
	BPSConfig      = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}      // fee rates, ratios, thresholds
)

// Price is an oracle or execution price, scaled by PriceConfig.
type Price int64

// Amount is a collateral quantity, scaled by AmountConfig.
type Amount int64

// Leverage is a notional/margin multiplier, scaled by LeverageConfig.
type Leverage int64

// BPS is a ratio in basis points, scaled by BPSConfig (10_000 = 100%).
type BPS int64

const (
	// OneX is leverage 1.
	OneX Leverage = 100_000_000
	// FullBPS is 100%.
	FullBPS BPS = 10_000
)

var ErrOverflow = errors.New("fixed-point overflow")

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown                         // toward zero
	RoundUp                           // toward +inf
)

// divide computes numerator / denominator into a fresh big.Int with rounding.
// Quotient truncation is toward zero, matching integer division on the wire.
func divide(numerator, denominator *big.Int, mode RoundingMode) *big.Int {
	quotient := new(big.Int)
	remainder := getInt128()
	defer putInt128(remainder)

	quotient.QuoRem(numerator, denominator, remainder)
	if remainder.Sign() == 0 {
		return quotient
	}

	positive := numerator.Sign() == denominator.Sign()

	switch mode {
	case RoundUp:
		if positive {
			quotient.Add(quotient, big.NewInt(1))
		}
	case RoundHalfEven:
		twice := getInt128()
		defer putInt128(twice)
		twice.Abs(remainder)
		twice.Lsh(twice, 1)
		absDen := getInt128()
		defer putInt128(absDen)
		absDen.Abs(denominator)

		cmp := twice.Cmp(absDen)
		if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
			if positive {
				quotient.Add(quotient, big.NewInt(1))
			} else {
				quotient.Sub(quotient, big.NewInt(1))
			}
		}
	}
	return quotient
}

// DivideInt128 performs numerator / denominator with rounding.
// Returns ErrOverflow when the result does not fit in int64.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) (int64, error) {
	if denominator == 0 {
		return 0, errors.New("division by zero")
	}
	q := divide(numerator, big.NewInt(denominator), roundingMode)
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}

// MulDiv returns a * b / c computed without intermediate overflow.
func MulDiv(a, b, c int64, mode RoundingMode) (int64, error) {
	product := MultiplyInt128(a, b)
	defer putInt128(product)
	return DivideInt128(product, c, mode)
}

// Notional returns margin * leverage, truncated to AmountConfig.
func Notional(margin Amount, leverage Leverage) (Amount, error) {
	v, err := MulDiv(int64(margin), int64(leverage), LeverageConfig.Scale, RoundDown)
	return Amount(v), err
}

// MulBPS returns a * rate / 10_000, truncated.
func (a Amount) MulBPS(rate BPS) Amount {
	v, err := MulDiv(int64(a), int64(rate), BPSConfig.Scale, RoundDown)
	if err != nil {
		// |rate| <= 10_000 in every caller, so the result is bounded by |a|.
		panic(err)
	}
	return Amount(v)
}

// LeverageFor returns notional / margin as a Leverage, truncated.
func LeverageFor(notional, margin Amount) (Leverage, error) {
	if margin <= 0 {
		return 0, errors.New("margin must be positive")
	}
	v, err := MulDiv(int64(notional), LeverageConfig.Scale, int64(margin), RoundDown)
	return Leverage(v), err
}

// WeightedLeverage returns (m1*l1 + m2*l2) / (m1 + m2).
func WeightedLeverage(m1 Amount, l1 Leverage, m2 Amount, l2 Leverage) (Leverage, error) {
	total := int64(m1) + int64(m2)
	if total <= 0 {
		return 0, errors.New("total margin must be positive")
	}
	t1 := MultiplyInt128(int64(m1), int64(l1))
	t2 := MultiplyInt128(int64(m2), int64(l2))
	defer putInt128(t1)
	defer putInt128(t2)
	t1.Add(t1, t2)
	v, err := DivideInt128(t1, total, RoundDown)
	return Leverage(v), err
}

// HarmonicEntryPrice returns the entry price p such that
// (n1+n2)/p = n1/p1 + n2/p2, truncated.
func HarmonicEntryPrice(n1 Amount, p1 Price, n2 Amount, p2 Price) (Price, error) {
	if n1 == 0 {
		return p2, nil
	}
	if p1 <= 0 || p2 <= 0 {
		return 0, errors.New("prices must be positive")
	}
	num := new(big.Int).Mul(big.NewInt(int64(n1)+int64(n2)), big.NewInt(int64(p1)))
	num.Mul(num, big.NewInt(int64(p2)))

	den := new(big.Int).Mul(big.NewInt(int64(n1)), big.NewInt(int64(p2)))
	den.Add(den, new(big.Int).Mul(big.NewInt(int64(n2)), big.NewInt(int64(p1))))
	if den.Sign() <= 0 {
		return 0, errors.New("notional must be positive")
	}

	q := divide(num, den, RoundDown)
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return Price(q.Int64()), nil
}

// ComputePnL returns notional * (exit - entry) / entry, sign-flipped for
// shorts and truncated toward zero.
func ComputePnL(isLong bool, notional Amount, entry, exit Price) (Amount, error) {
	if entry <= 0 {
		return 0, errors.New("entry price must be positive")
	}
	diff := int64(exit) - int64(entry)
	if !isLong {
		diff = -diff
	}
	v, err := MulDiv(int64(notional), diff, int64(entry), RoundDown)
	return Amount(v), err
}

// PriceChangeBPS returns |exit - entry| / entry in basis points, truncated.
func PriceChangeBPS(entry, exit Price) (BPS, error) {
	if entry <= 0 {
		return 0, errors.New("entry price must be positive")
	}
	diff := int64(exit) - int64(entry)
	if diff < 0 {
		diff = -diff
	}
	v, err := MulDiv(diff, BPSConfig.Scale, int64(entry), RoundDown)
	return BPS(v), err
}

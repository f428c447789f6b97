// internal/math/decimal.go
package math

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToDecimal converts a scaled integer into a decimal value for display.
func ToDecimal(v int64, cfg DecimalConfig) decimal.Decimal {
	return decimal.New(v, -int32(cfg.DecimalPrecision))
}

// ParseFixed parses a human-readable decimal string ("3000.5", "0.1")
// into its scaled integer form. Extra precision is rejected rather than
// silently rounded.
func ParseFixed(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	scaled := d.Shift(int32(cfg.DecimalPrecision))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("parse %q: more than %d decimal places", s, cfg.DecimalPrecision)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse %q: %w", s, ErrOverflow)
	}
	return scaled.IntPart(), nil
}

func (p Price) String() string    { return ToDecimal(int64(p), PriceConfig).String() }
func (a Amount) String() string   { return ToDecimal(int64(a), AmountConfig).String() }
func (l Leverage) String() string { return ToDecimal(int64(l), LeverageConfig).String() + "x" }
func (b BPS) String() string      { return ToDecimal(int64(b), BPSConfig).Shift(2).String() + "%" }

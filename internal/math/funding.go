// internal/math/funding.go
package math

import "math/big"

// fundingDenominator = 1e8 (leverage) * 1e4 (rate bps) * seconds per year.
var fundingDenominator = new(big.Int).Mul(
	big.NewInt(1_000_000_000_000),
	big.NewInt(365*86400),
)

// ComputeInterestFee returns the holding cost of a position:
// margin * leverage * ratePerYear * elapsed / (1e12 * 365 * 86400).
// ratePerYear is in basis points per year. Negative inputs accrue nothing.
func ComputeInterestFee(margin Amount, leverage Leverage, ratePerYear BPS, elapsedSeconds int64) (Amount, error) {
	if margin <= 0 || leverage <= 0 || ratePerYear <= 0 || elapsedSeconds <= 0 {
		return 0, nil
	}

	raw := MultiplyInt128(int64(margin), int64(leverage))
	defer putInt128(raw)
	raw.Mul(raw, big.NewInt(int64(ratePerYear)))
	raw.Mul(raw, big.NewInt(elapsedSeconds))

	fee := divide(raw, fundingDenominator, RoundDown)
	if !fee.IsInt64() {
		return 0, ErrOverflow
	}
	return Amount(fee.Int64()), nil
}

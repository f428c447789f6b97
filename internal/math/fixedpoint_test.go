package math_test

import (
	"math/big"
	"testing"

	fpmath "PerpVault/internal/math"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivideInt128_Rounding(t *testing.T) {
	tests := []struct {
		name string
		num  int64
		den  int64
		mode fpmath.RoundingMode
		want int64
	}{
		{"down positive", 7, 2, fpmath.RoundDown, 3},
		{"down negative truncates toward zero", -7, 2, fpmath.RoundDown, -3},
		{"up positive", 7, 2, fpmath.RoundUp, 4},
		{"up negative", -7, 2, fpmath.RoundUp, -3},
		{"up exact", 8, 2, fpmath.RoundUp, 4},
		{"half even rounds to even", 5, 2, fpmath.RoundHalfEven, 2},
		{"half even rounds odd up", 7, 2, fpmath.RoundHalfEven, 4},
		{"half even negative", -5, 2, fpmath.RoundHalfEven, -2},
		{"half even above half", 8, 3, fpmath.RoundHalfEven, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.DivideInt128(big.NewInt(tt.num), tt.den, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulDiv_NoIntermediateOverflow(t *testing.T) {
	// 1000e8 margin at 10x: the raw product is 1e20, beyond int64.
	got, err := fpmath.Notional(1000*100_000_000, 10*fpmath.OneX)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(10_000*100_000_000), got)

	_, err = fpmath.MulDiv(1<<62, 1<<62, 1, fpmath.RoundDown)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)
}

func TestWeightedLeverage(t *testing.T) {
	lev, err := fpmath.WeightedLeverage(1000*100_000_000, 10*fpmath.OneX, 1000*100_000_000, 20*fpmath.OneX)
	require.NoError(t, err)
	assert.Equal(t, 15*fpmath.OneX, lev)
}

func TestHarmonicEntryPrice(t *testing.T) {
	n1 := fpmath.Amount(1_000_000_000_000)
	n2 := fpmath.Amount(2_000_000_000_000)
	p, err := fpmath.HarmonicEntryPrice(n1, 300_060_012_000, n2, 305_122_231_800)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(303_415_952_852), p)

	// First fill takes the trade price as is.
	p, err = fpmath.HarmonicEntryPrice(0, 0, n2, 305_122_231_800)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(305_122_231_800), p)

	// Equal prices average to themselves.
	p, err = fpmath.HarmonicEntryPrice(n1, 300_000_000_000, n2, 300_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(300_000_000_000), p)
}

func TestComputePnL(t *testing.T) {
	notional := fpmath.Amount(10_000 * 100_000_000)
	entry := fpmath.Price(3000 * 100_000_000)

	pnl, err := fpmath.ComputePnL(true, notional, entry, 3300*100_000_000)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(1000*100_000_000), pnl)

	pnl, err = fpmath.ComputePnL(false, notional, entry, 3300*100_000_000)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(-1000*100_000_000), pnl)

	_, err = fpmath.ComputePnL(true, notional, 0, 1)
	assert.Error(t, err)
}

func TestComputeInterestFee(t *testing.T) {
	// 10_000 notional at 100%/yr for a full year costs exactly the notional.
	fee, err := fpmath.ComputeInterestFee(1000*100_000_000, 10*fpmath.OneX, fpmath.FullBPS, 365*86400)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(10_000*100_000_000), fee)

	// 1%/yr over one day.
	fee, err = fpmath.ComputeInterestFee(1000*100_000_000, 10*fpmath.OneX, 100, 86400)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(27_397_260), fee)

	fee, err = fpmath.ComputeInterestFee(1000*100_000_000, 10*fpmath.OneX, 100, -5)
	require.NoError(t, err)
	assert.Zero(t, fee)
}

func TestParseFixed(t *testing.T) {
	v, err := fpmath.ParseFixed("3000.5", fpmath.PriceConfig)
	require.NoError(t, err)
	assert.Equal(t, int64(300_050_000_000), v)

	v, err = fpmath.ParseFixed("0.1", fpmath.BPSConfig)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v)

	_, err = fpmath.ParseFixed("0.00001", fpmath.BPSConfig)
	assert.Error(t, err)

	_, err = fpmath.ParseFixed("abc", fpmath.PriceConfig)
	assert.Error(t, err)

	assert.Equal(t, "3000.5", fpmath.Price(300_050_000_000).String())
	assert.Equal(t, "15x", (15 * fpmath.OneX).String())
}

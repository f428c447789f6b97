package math_test

import (
	"testing"

	fpmath "PerpVault/internal/math"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReserve  = fpmath.Amount(50_000_000 * 100_000_000)
	testMaxShift = int64(300_000)
	refPrice     = fpmath.Price(3000 * 100_000_000)
)

func priceInput(isLong bool, oiLong, oiShort, notional fpmath.Amount) fpmath.PriceInput {
	return fpmath.PriceInput{
		IsLong:            isLong,
		OpenInterestLong:  oiLong,
		OpenInterestShort: oiShort,
		ExposureCap:       testReserve,
		MaxShift:          testMaxShift,
		Reserve:           testReserve,
		Notional:          notional,
		ReferencePrice:    refPrice,
	}
}

func TestExecutionPrice_OpeningLong(t *testing.T) {
	p, err := fpmath.ExecutionPrice(priceInput(true, 0, 0, 1_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(300_060_012_000), p)
}

func TestExecutionPrice_IncreaseWithPositiveShift(t *testing.T) {
	in := priceInput(true, 1_000_000_000_000, 0, 2_000_000_000_000)
	in.ReferencePrice = 3050 * 100_000_000

	shift, err := fpmath.Shift(in.OpenInterestLong, in.OpenInterestShort, in.ExposureCap, in.MaxShift)
	require.NoError(t, err)
	assert.Equal(t, int64(60), shift)

	p, err := fpmath.ExecutionPrice(in)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(305_122_231_800), p)
}

func TestSlippage_ShiftIsAsymmetric(t *testing.T) {
	n := fpmath.Amount(1_000_000_000_000)

	baseLong, err := fpmath.Slippage(priceInput(true, 0, 0, n))
	require.NoError(t, err)
	baseShort, err := fpmath.Slippage(priceInput(false, 0, 0, n))
	require.NoError(t, err)

	tests := []struct {
		name    string
		isLong  bool
		oiLong  fpmath.Amount
		oiShort fpmath.Amount
		want    int64
	}{
		{"long with excess longs pays full shift", true, n, 0, baseLong + 60},
		{"long with excess shorts gets half shift", true, 0, n, baseLong - 30},
		{"short with excess longs gets half shift", false, n, 0, baseShort + 30},
		{"short with excess shorts pays full shift", false, 0, n, baseShort - 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.Slippage(priceInput(tt.isLong, tt.oiLong, tt.oiShort, n))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutionPrice_MonotonicInSize(t *testing.T) {
	sizes := []fpmath.Amount{
		1_000_000_000,
		100_000_000_000,
		1_000_000_000_000,
		50_000_000_000_000,
		1_000_000_000_000_000,
	}

	var prevLong, prevShort fpmath.Price
	for i, n := range sizes {
		long, err := fpmath.ExecutionPrice(priceInput(true, 0, 0, n))
		require.NoError(t, err)
		short, err := fpmath.ExecutionPrice(priceInput(false, 0, 0, n))
		require.NoError(t, err)

		if i > 0 {
			assert.Greater(t, long, prevLong, "long price must rise with size %d", n)
			assert.Less(t, short, prevShort, "short price must fall with size %d", n)
		}
		assert.GreaterOrEqual(t, long, refPrice)
		assert.LessOrEqual(t, short, refPrice)
		prevLong, prevShort = long, short
	}
}

func TestExecutionPrice_RejectsDegenerateTrades(t *testing.T) {
	_, err := fpmath.ExecutionPrice(priceInput(true, 0, 0, 0))
	assert.ErrorIs(t, err, fpmath.ErrZeroNotional)

	_, err = fpmath.ExecutionPrice(priceInput(true, 0, 0, testReserve))
	assert.ErrorIs(t, err, fpmath.ErrReserveExceeded)

	in := priceInput(false, 0, 0, 100)
	in.Reserve = 0
	_, err = fpmath.ExecutionPrice(in)
	assert.ErrorIs(t, err, fpmath.ErrReserveExceeded)

	in = priceInput(true, 0, 0, 100)
	in.ReferencePrice = 0
	_, err = fpmath.ExecutionPrice(in)
	assert.ErrorIs(t, err, fpmath.ErrNoReferencePrice)
}

func TestExecutionPrice_ShortBeyondReserve(t *testing.T) {
	// A sell twice the reserve's size fills near a third of the reference.
	p, err := fpmath.ExecutionPrice(priceInput(false, 0, 0, 2*testReserve))
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(99_999_999_000), p)

	_, err = fpmath.ExecutionPrice(priceInput(true, 0, 0, 2*testReserve))
	assert.ErrorIs(t, err, fpmath.ErrReserveExceeded)
}

func TestExecutionPrice_FallsBackToVaultBalance(t *testing.T) {
	in := priceInput(true, 0, 0, 1_000_000_000_000)
	in.Reserve = 0
	in.VaultBalance = testReserve

	p, err := fpmath.ExecutionPrice(in)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Price(300_060_012_000), p)
}

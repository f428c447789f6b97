package state_test

import (
	"encoding/json"
	"testing"

	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unit = fpmath.Amount(100_000_000)

func validProduct() state.ProductConfig {
	return state.ProductConfig{
		Feed:                 "ETH-USD",
		MaxLeverage:          50 * fpmath.OneX,
		Fee:                  10,
		LiquidationThreshold: 1_000,
		MinPriceChange:       150,
		Weight:               10,
		MaxExposure:          50_000_000 * unit,
		Active:               true,
	}
}

func TestValidateProduct(t *testing.T) {
	require.NoError(t, state.ValidateProduct(validProduct()))

	tests := []struct {
		name   string
		mutate func(*state.ProductConfig)
	}{
		{"missing feed", func(c *state.ProductConfig) { c.Feed = "" }},
		{"leverage below 1x", func(c *state.ProductConfig) { c.MaxLeverage = fpmath.OneX - 1 }},
		{"zero threshold", func(c *state.ProductConfig) { c.LiquidationThreshold = 0 }},
		{"threshold at 100%", func(c *state.ProductConfig) { c.LiquidationThreshold = fpmath.FullBPS }},
		{"fee at 100%", func(c *state.ProductConfig) { c.Fee = fpmath.FullBPS }},
		{"no exposure", func(c *state.ProductConfig) { c.MaxExposure = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProduct()
			tt.mutate(&cfg)
			assert.Error(t, state.ValidateProduct(cfg))
		})
	}
}

func TestValidateParams(t *testing.T) {
	require.NoError(t, state.ValidateParams(state.DefaultParams()))

	p := state.DefaultParams()
	p.VaultRewardRatio = 4_999
	assert.ErrorContains(t, state.ValidateParams(p), "sum to 10000")

	p = state.DefaultParams()
	p.LiquidationBounty = fpmath.FullBPS + 1
	assert.Error(t, state.ValidateParams(p))
}

func TestSplitFee_ResidueGoesToVault(t *testing.T) {
	split := state.SplitFee(fpmath.Amount(1_001), state.DefaultParams())
	assert.Equal(t, fpmath.Amount(200), split.Protocol)
	assert.Equal(t, fpmath.Amount(300), split.Staking)
	assert.Equal(t, fpmath.Amount(501), split.Vault)
	assert.Equal(t, fpmath.Amount(1_001), split.Total())

	pools := state.FeePools{}.Add(split, 7)
	assert.Equal(t, fpmath.Amount(508), pools.Vault)
}

func TestPositionKey_IDIsStable(t *testing.T) {
	owner := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	long := state.PositionKey{Owner: owner, ProductID: 1, IsLong: true}
	short := state.PositionKey{Owner: owner, ProductID: 1, IsLong: false}

	assert.Equal(t, long.ID(), long.ID())
	assert.NotEqual(t, long.ID(), short.ID())
	assert.NotEqual(t, long.ID(), state.PositionKey{Owner: owner, ProductID: 2, IsLong: true}.ID())
}

func TestVault_ShareMath(t *testing.T) {
	v := state.Vault{}
	shares, err := v.SharesFor(100 * unit)
	require.NoError(t, err)
	assert.Equal(t, 100*unit, shares, "first deposit mints 1:1")

	// Vault doubled through trader losses: new deposits get half the shares.
	v = state.Vault{Balance: 200 * unit, Shares: 100 * unit}
	shares, err = v.SharesFor(100 * unit)
	require.NoError(t, err)
	assert.Equal(t, 50*unit, shares)

	payout, err := v.PayoutFor(50 * unit)
	require.NoError(t, err)
	assert.Equal(t, 100*unit, payout)

	_, err = state.Vault{Balance: 0, Shares: 10}.SharesFor(1)
	assert.ErrorIs(t, err, state.ErrVaultDepleted)
}

func TestStake_PrincipalFor(t *testing.T) {
	s := state.Stake{Amount: 90, Shares: 30}
	p, err := s.PrincipalFor(10)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(30), p)

	p, err = s.PrincipalFor(30)
	require.NoError(t, err)
	assert.Equal(t, fpmath.Amount(90), p)
}

func TestCheckMarginHealth(t *testing.T) {
	pos := &state.Position{
		IsLong:   true,
		Margin:   1_000 * unit,
		Leverage: 10 * fpmath.OneX,
		Price:    3_000 * 100_000_000,
	}

	// -9% move at 10x leaves 10% equity: exactly at a 10% threshold.
	h, err := state.CheckMarginHealth(pos, 2_730*100_000_000, 1_000)
	require.NoError(t, err)
	assert.Equal(t, 100*unit, h.Equity)
	assert.Equal(t, state.MarginStatusLiquidatable, h.Status)

	h, err = state.CheckMarginHealth(pos, 2_731*100_000_000, 1_000)
	require.NoError(t, err)
	assert.Equal(t, state.MarginStatusHealthy, h.Status)

	pos.IsLong = false
	h, err = state.CheckMarginHealth(pos, 3_270*100_000_000, 1_000)
	require.NoError(t, err)
	assert.Equal(t, state.MarginStatusLiquidatable, h.Status)
}

func TestOpenInterest_AdjustFloorsAtZero(t *testing.T) {
	oi := state.OpenInterest{Long: 10, Short: 5}
	oi = oi.Adjust(true, -15)
	assert.Zero(t, oi.Long)
	assert.Equal(t, fpmath.Amount(5), oi.Short)
	assert.Equal(t, fpmath.Amount(8), oi.Adjust(false, 3).Side(false))
}

func TestMemStore_CommitIsAllOrNothingPerChangeSet(t *testing.T) {
	gov := uuid.New()
	s := state.NewMemStore(gov, state.DefaultParams())
	owner := uuid.New()
	key := state.PositionKey{Owner: owner, ProductID: 1, IsLong: true}

	cs := state.NewChangeSet()
	cs.PutPosition(state.Position{ID: key.ID(), Owner: owner, ProductID: 1, IsLong: true, Margin: 5})
	cs.SetVault(state.Vault{Balance: 10, Shares: 10, Staked: 10})

	// Nothing visible before commit.
	_, ok := s.Position(key.ID())
	assert.False(t, ok)
	assert.Zero(t, s.Vault().Balance)

	s.Commit(cs)
	got, ok := s.Position(key.ID())
	require.True(t, ok)
	assert.Equal(t, fpmath.Amount(5), got.Margin)
	assert.Equal(t, fpmath.Amount(10), s.Vault().Balance)

	cs = state.NewChangeSet()
	cs.DeletePosition(key.ID())
	s.Commit(cs)
	_, ok = s.Position(key.ID())
	assert.False(t, ok)
}

func TestMemStore_AccessFlags(t *testing.T) {
	gov, owner, mgr := uuid.New(), uuid.New(), uuid.New()
	s := state.NewMemStore(gov, state.DefaultParams())

	assert.True(t, state.CanActFor(s, owner, owner))
	assert.False(t, state.CanActFor(s, owner, mgr))

	cs := state.NewChangeSet()
	cs.SetAccountManager(owner, mgr, true)
	s.Commit(cs)
	assert.False(t, state.CanActFor(s, owner, mgr), "owner approval alone is not enough")

	cs = state.NewChangeSet()
	cs.SetManager(mgr, true)
	s.Commit(cs)
	assert.True(t, state.CanActFor(s, owner, mgr))

	cs = state.NewChangeSet()
	cs.SetManager(mgr, false)
	s.Commit(cs)
	assert.False(t, state.CanActFor(s, owner, mgr))
}

func TestMemStore_SnapshotRoundTripPreservesDigest(t *testing.T) {
	gov, owner := uuid.New(), uuid.New()
	s := state.NewMemStore(gov, state.DefaultParams())

	cs := state.NewChangeSet()
	cs.PutProduct(state.Product{ID: 1, ProductConfig: validProduct()})
	cs.PutPosition(state.Position{ID: uuid.New(), Owner: owner, ProductID: 1, Margin: 5, Leverage: fpmath.OneX, Price: 7})
	cs.SetOpenInterest(1, state.OpenInterest{Long: 5})
	cs.PutStake(state.Stake{Owner: owner, Amount: 9, Shares: 9, Timestamp: 100})
	cs.SetVault(state.Vault{Balance: 9, Staked: 9, Shares: 9, Cap: 100})
	cs.SetFeePools(state.FeePools{Protocol: 1, Staking: 2, Vault: 3})
	cs.SetPrice("ETH-USD", state.PriceMark{Price: 7, Sequence: 3})
	cs.SetRate(1, state.RateMark{Rate: 100, EpochID: 2})
	cs.SetLiquidator(owner, true)
	cs.SetAccountManager(owner, gov, true)
	s.Commit(cs)

	raw, err := json.Marshal(s.Export())
	require.NoError(t, err)
	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	restored := state.RestoreMemStore(snap)

	assert.Equal(t, s.Digest(), restored.Digest())
	assert.True(t, restored.IsLiquidator(owner))
	assert.True(t, restored.IsAccountManager(owner, gov))
	m, ok := restored.OraclePrice("ETH-USD")
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Sequence)
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"PerpVault/internal/config"
	"PerpVault/internal/core"
	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11
params:
  max_shift: "0.003"
  min_profit_time: 12h
  min_margin: "10"
  liquidation_bounty: "0.5"
  allow_public_stake: true
vault:
  cap: "10000000"
  cooldown: 24h
products:
  - id: 1
    feed: ETH-USD
    max_leverage: "50"
    fee: "0.001"
    liquidation_threshold: "0.8"
    min_price_change: "0.01"
    weight: 1
    max_exposure: "5000000"
  - id: 2
    feed: BTC-USD
    max_leverage: "20"
    fee: "0.0005"
    liquidation_threshold: "0.8"
    max_exposure: "5000000"
    reserve: "1000000"
    active: false
liquidators:
  - 5c4b3a29-1807-4f6e-9d5c-4b3a29180761
`

func TestParse_ConvertsDecimals(t *testing.T) {
	g, err := config.Parse([]byte(sample))
	require.NoError(t, err)

	params, err := g.Params.ToParams()
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), params.MaxShift)
	assert.Equal(t, int64(12*3600), params.MinProfitTime)
	assert.Equal(t, fpmath.Amount(10e8), params.MinMargin)
	assert.Equal(t, fpmath.BPS(5000), params.LiquidationBounty)
	assert.True(t, params.AllowPublicStake)
	// Unset fields keep their defaults.
	assert.Equal(t, state.DefaultParams().VaultRewardRatio, params.VaultRewardRatio)

	eth, err := g.Products[0].ToConfig()
	require.NoError(t, err)
	assert.Equal(t, 50*fpmath.OneX, eth.MaxLeverage)
	assert.Equal(t, fpmath.BPS(10), eth.Fee)
	assert.Equal(t, fpmath.BPS(8000), eth.LiquidationThreshold)
	assert.Equal(t, fpmath.BPS(100), eth.MinPriceChange)
	assert.True(t, eth.Active)

	btc, err := g.Products[1].ToConfig()
	require.NoError(t, err)
	assert.False(t, btc.Active)
	assert.Equal(t, fpmath.Amount(1_000_000e8), btc.Reserve)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"no governor":   "params: {}\n",
		"unknown key":   "governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11\nfoo: 1\n",
		"bad decimal":   "governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11\nparams:\n  min_margin: ten\n",
		"too precise":   "governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11\nparams:\n  liquidation_bounty: \"0.00001\"\n",
		"bad threshold": "governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11\nproducts:\n  - {id: 1, feed: X, max_leverage: \"10\", liquidation_threshold: \"1\", max_exposure: \"1\"}\n",
		"duplicate": "governor: 0b0f9d1c-4f1e-4b7a-8f3a-2f6c1d0e9a11\nproducts:\n" +
			"  - {id: 1, feed: X, max_leverage: \"10\", liquidation_threshold: \"0.5\", max_exposure: \"1\"}\n" +
			"  - {id: 1, feed: X, max_leverage: \"10\", liquidation_threshold: \"0.5\", max_exposure: \"1\"}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestCommands_ApplyAndDeduplicateOnRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	g, err := config.Load(path)
	require.NoError(t, err)

	at := time.Unix(1_700_000_000, 0)
	cmds, err := g.Commands(at)
	require.NoError(t, err)
	require.Len(t, cmds, 5) // params, vault, two products, one liquidator

	eng := core.NewEngine(state.NewMemStore(g.Governor, state.DefaultParams()), core.Options{})
	for _, c := range cmds {
		_, err := eng.ProcessEvent(c)
		require.NoError(t, err, "%s", c.EventType())
	}
	assert.Equal(t, fpmath.Amount(10_000_000e8), eng.GetVault().Cap)
	assert.Equal(t, int64(24*3600), eng.GetVault().Cooldown)

	again, err := g.Commands(at.Add(time.Hour))
	require.NoError(t, err)
	for _, c := range again {
		_, err := eng.ProcessEvent(c)
		assert.ErrorIs(t, err, core.ErrDuplicate)
	}

	g.Vault.Cap = "20000000"
	edited, err := g.Commands(at.Add(2 * time.Hour))
	require.NoError(t, err)
	var applied int
	for _, c := range edited {
		if _, err := eng.ProcessEvent(c); err == nil {
			applied++
			_, isVault := c.(*event.VaultConfigUpdate)
			assert.True(t, isVault)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, fpmath.Amount(20_000_000e8), eng.GetVault().Cap)
}

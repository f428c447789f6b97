package query_test

import (
	"context"
	"testing"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/persistence"
	"PerpVault/internal/projection"
	"PerpVault/internal/query"
	"PerpVault/internal/state"
	"PerpVault/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	gov, trader uuid.UUID
	eng         *core.Engine
	outs        []core.CoreOutput
}

func runSession(t *testing.T) fixture {
	t.Helper()
	f := fixture{gov: uuid.New(), trader: uuid.New()}
	f.eng = core.NewEngine(state.NewMemStore(f.gov, state.DefaultParams()), core.Options{})
	clock := time.Unix(1_700_000_000, 0).UTC()
	hdr := func(caller uuid.UUID) event.Header {
		clock = clock.Add(time.Second)
		return event.Header{RequestID: uuid.New(), Caller: caller, Timestamp: clock}
	}

	for _, c := range []event.Event{
		&event.ProductUpsert{Header: hdr(f.gov), Product: 1, Config: state.ProductConfig{
			Feed: "ETH-USD", MaxLeverage: 50 * fpmath.OneX, Fee: 10, LiquidationThreshold: 1000,
			MinPriceChange: 100, Weight: 1, MaxExposure: 5e15, Reserve: 5e15, Active: true,
		}},
		&event.VaultConfigUpdate{Header: hdr(f.gov), Cap: 1e14, Cooldown: 3600},
		&event.CollateralDeposit{Header: hdr(f.gov), Account: f.gov, Amount: 1e13},
		&event.CollateralDeposit{Header: hdr(f.gov), Account: f.trader, Amount: 1e12},
		&event.Stake{Header: hdr(f.gov), Beneficiary: f.gov, Amount: 1e13},
		&event.OraclePriceUpdate{Feed: "ETH-USD", Price: 3000e8, PriceSequence: 1, Timestamp: clock},
		&event.OpenPosition{Header: hdr(f.trader), Owner: f.trader, Product: 1, IsLong: true,
			Margin: 1000e8, Leverage: 10 * fpmath.OneX, AcceptablePrice: 3100e8},
		&event.ClosePosition{Header: hdr(f.trader), Owner: f.trader, Product: 1, IsLong: true,
			Margin: 400e8, AcceptablePrice: 1},
	} {
		out, err := f.eng.ProcessEvent(c)
		require.NoError(t, err, "%s", c.EventType())
		f.outs = append(f.outs, *out)
	}
	return f
}

func loadAll(t *testing.T, f fixture) *query.QueryService {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	ch := make(chan core.CoreOutput, len(f.outs))
	for _, o := range f.outs {
		ch <- o
	}
	close(ch)
	require.NoError(t, persistence.NewPersistenceWorker(db, ch, 100, time.Second, nil, zerolog.Nop()).Run(ctx))

	pw := projection.NewProjectionWorker(db, nil, nil, zerolog.Nop())
	for _, o := range f.outs {
		require.NoError(t, pw.Apply(ctx, projection.Plan(o)))
	}
	return query.NewQueryService(db, nil)
}

func TestQueryService_PositionsAndHistory(t *testing.T) {
	f := runSession(t)
	qs := loadAll(t, f)
	ctx := context.Background()

	positions, err := qs.GetPositions(ctx, f.trader)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.True(t, p.IsLong)
	assert.Equal(t, "10x", p.Leverage)
	assert.Equal(t, f.eng.GetSequence(), p.AsOfSequence)

	trades, err := qs.GetTradeHistory(ctx, f.trader, 1, 0)
	require.NoError(t, err)
	require.Len(t, trades.Items, 1)
	assert.Equal(t, projection.ActionClose, trades.Items[0].Action, "newest first")
	require.NotZero(t, trades.NextCursor)

	older, err := qs.GetTradeHistory(ctx, f.trader, 10, trades.NextCursor)
	require.NoError(t, err)
	require.Len(t, older.Items, 1)
	assert.Equal(t, projection.ActionOpen, older.Items[0].Action)
	assert.Zero(t, older.NextCursor)

	journals, err := qs.GetJournalHistory(ctx, f.trader, 100, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, journals.Items)
}

func TestQueryService_VaultStakeAndIntegrity(t *testing.T) {
	f := runSession(t)
	qs := loadAll(t, f)
	ctx := context.Background()

	stake, err := qs.GetStake(ctx, f.gov)
	require.NoError(t, err)
	require.NotNil(t, stake)
	assert.Equal(t, fpmath.Amount(1e13).String(), stake.Staked)

	missing, err := qs.GetStake(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	vault, err := qs.GetVault(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), vault.Stakers)
	assert.Equal(t, fpmath.Amount(f.eng.Balance(ledger.VaultAccount)).String(), vault.Balance)

	pools, err := qs.GetFeePools(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "0", pools.Protocol, "open and close both charge fees")

	report, err := qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)
	assert.Zero(t, report.ProjectionLag)
}

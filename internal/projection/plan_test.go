package projection

import (
	"testing"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	t      *testing.T
	eng    *core.Engine
	gov    uuid.UUID
	trader uuid.UUID
	clock  time.Time
}

func newSession(t *testing.T) *session {
	s := &session{t: t, gov: uuid.New(), trader: uuid.New(), clock: time.Unix(1_700_000_000, 0).UTC()}
	s.eng = core.NewEngine(state.NewMemStore(s.gov, state.DefaultParams()), core.Options{})
	for _, c := range []event.Event{
		&event.ProductUpsert{Header: s.hdr(s.gov), Product: 1, Config: state.ProductConfig{
			Feed: "ETH-USD", MaxLeverage: 50 * fpmath.OneX, Fee: 10, LiquidationThreshold: 1000,
			MinPriceChange: 100, Weight: 1, MaxExposure: 5e15, Reserve: 5e15, Active: true,
		}},
		&event.VaultConfigUpdate{Header: s.hdr(s.gov), Cap: 1e14, Cooldown: 3600},
		&event.CollateralDeposit{Header: s.hdr(s.gov), Account: s.gov, Amount: 1e13},
		&event.CollateralDeposit{Header: s.hdr(s.gov), Account: s.trader, Amount: 1e12},
		&event.OraclePriceUpdate{Feed: "ETH-USD", Price: 3000e8, PriceSequence: 1, Timestamp: s.clock},
	} {
		s.run(c)
	}
	return s
}

func (s *session) hdr(caller uuid.UUID) event.Header {
	s.clock = s.clock.Add(time.Second)
	return event.Header{RequestID: uuid.New(), Caller: caller, Timestamp: s.clock}
}

func (s *session) run(c event.Event) core.CoreOutput {
	s.t.Helper()
	out, err := s.eng.ProcessEvent(c)
	require.NoError(s.t, err, "%s", c.EventType())
	return *out
}

func sumBalances(u Update) int64 {
	var sum int64
	for _, d := range u.Balances {
		sum += d
	}
	return sum
}

func TestPlan_OpenThenPartialClose(t *testing.T) {
	s := newSession(t)

	open := Plan(s.run(&event.OpenPosition{Header: s.hdr(s.trader), Owner: s.trader, Product: 1,
		IsLong: true, Margin: 1000e8, Leverage: 10 * fpmath.OneX, AcceptablePrice: 3100e8}))

	assert.Equal(t, s.eng.GetSequence(), open.Sequence)
	assert.Zero(t, sumBalances(open))
	assert.Negative(t, open.Balances[ledger.NewUserAccountKey(s.trader, ledger.SubTypeCollateral).AccountPath()])

	require.Len(t, open.Positions, 1)
	pos := open.Positions[0]
	assert.Equal(t, s.trader, pos.Owner)
	assert.True(t, pos.IsLong)
	assert.Positive(t, pos.Margin)
	require.Len(t, open.Trades, 1)
	assert.Equal(t, ActionOpen, open.Trades[0].Action)
	assert.Empty(t, open.Funding, "a fresh position settles no funding")

	closing := Plan(s.run(&event.ClosePosition{Header: s.hdr(s.trader), Owner: s.trader, Product: 1,
		IsLong: true, Margin: 400e8, AcceptablePrice: 1}))

	assert.Zero(t, sumBalances(closing))
	require.Len(t, closing.Closes, 1)
	assert.Equal(t, pos.PositionID, closing.Closes[0].PositionID)
	assert.Equal(t, fpmath.Amount(400e8), closing.Closes[0].Margin)
	require.Len(t, closing.Trades, 1)
	assert.Equal(t, ActionClose, closing.Trades[0].Action)
	assert.Nil(t, closing.Trades[0].Liquidator)
}

func TestPlan_StakeAndRedeem(t *testing.T) {
	s := newSession(t)

	staked := Plan(s.run(&event.Stake{Header: s.hdr(s.gov), Beneficiary: s.gov, Amount: 5e12}))
	require.Len(t, staked.Stakes, 1)
	assert.Equal(t, s.gov, staked.Stakes[0].Owner)
	assert.Equal(t, fpmath.Amount(5e12), staked.Stakes[0].Staked)
	assert.Positive(t, staked.Stakes[0].Shares)
	assert.Empty(t, staked.Positions)

	s.clock = s.clock.Add(2 * time.Hour)
	redeemed := Plan(s.run(&event.Redeem{Header: s.hdr(s.gov), Beneficiary: s.gov, Recipient: s.gov,
		Shares: staked.Stakes[0].Shares}))
	require.Len(t, redeemed.Stakes, 1)
	assert.Equal(t, -staked.Stakes[0].Shares, redeemed.Stakes[0].Shares)
	assert.Positive(t, redeemed.Stakes[0].Redeemed)
}

func TestPlan_AdminEventsOnlyMoveTheWatermark(t *testing.T) {
	s := newSession(t)
	u := Plan(s.run(&event.MinMarginUpdate{Header: s.hdr(s.gov), MinMargin: 10e8}))
	assert.Equal(t, s.eng.GetSequence(), u.Sequence)
	assert.Empty(t, u.Balances)
	assert.Empty(t, u.Positions)
	assert.Empty(t, u.Trades)
}

func TestPlan_LiquidationRecord(t *testing.T) {
	liquidator, owner, id := uuid.New(), uuid.New(), uuid.New()
	out := core.CoreOutput{
		Envelope: &event.EventEnvelope{Sequence: 9, EventType: event.EventTypeLiquidatePosition,
			Timestamp: time.Unix(1_700_000_000, 0)},
		Records: []event.Record{&event.PositionClosed{
			PositionID: id, Owner: owner, ProductID: 2, Price: 2650e8, Margin: 1000e8,
			Funding: -5e8, PnL: -900e8, Liquidated: true, Liquidator: liquidator, LiquidatorReward: 20e8,
		}},
	}

	u := Plan(out)
	require.Len(t, u.Trades, 1)
	tr := u.Trades[0]
	assert.Equal(t, ActionLiquidate, tr.Action)
	require.NotNil(t, tr.Liquidator)
	assert.Equal(t, liquidator, *tr.Liquidator)
	assert.Equal(t, fpmath.Amount(20e8), tr.LiquidatorReward)

	require.Len(t, u.Funding, 1)
	assert.Equal(t, map[uuid.UUID]fpmath.Amount{owner: -5e8}, NetFunding(u.Funding))
	assert.Empty(t, u.Balances, "no batch, no balance deltas")
}

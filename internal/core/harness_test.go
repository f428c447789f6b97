package core_test

import (
	"testing"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	ethFeed   = "ETH-USD"
	ethID     = uint32(1)
	unit      = fpmath.Amount(1e8)
	depth     = fpmath.Amount(5e15) // reserve and exposure cap
	startTime = int64(1_700_000_000)
)

func px(v float64) fpmath.Price { return fpmath.Price(v * 1e8) }

func lev(x int64) fpmath.Leverage { return fpmath.Leverage(x) * fpmath.OneX }

// harness drives an engine with a controllable clock and a funded vault.
type harness struct {
	t        *testing.T
	eng      *core.Engine
	persist  chan core.CoreOutput
	gov      uuid.UUID
	alice    uuid.UUID
	bob      uuid.UUID
	keeper   uuid.UUID
	clock    time.Time
	priceSeq map[string]int64
}

func ethConfig() state.ProductConfig {
	return state.ProductConfig{
		Feed:                 ethFeed,
		MaxLeverage:          lev(50),
		Fee:                  10, // 0.1%
		LiquidationThreshold: 1_000,
		MinPriceChange:       100,
		Weight:               1,
		MaxExposure:          depth,
		Reserve:              depth,
		Active:               true,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		persist:  make(chan core.CoreOutput, 4096),
		gov:      uuid.MustParse("00000000-0000-0000-0000-0000000000a0"),
		alice:    uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
		bob:      uuid.MustParse("00000000-0000-0000-0000-0000000000b0"),
		keeper:   uuid.MustParse("00000000-0000-0000-0000-0000000000c0"),
		clock:    time.Unix(startTime, 0).UTC(),
		priceSeq: make(map[string]int64),
	}
	h.eng = core.NewEngine(state.NewMemStore(h.gov, state.DefaultParams()), core.Options{
		IdempotencyCapacity: 1024,
		PersistChan:         h.persist,
		Clock:               func() time.Time { return h.clock },
	})

	h.apply(&event.ProductUpsert{Header: h.hdr(h.gov), Product: ethID, Config: ethConfig()})
	h.apply(&event.VaultConfigUpdate{Header: h.hdr(h.gov), Cap: 1_000_000 * unit, Cooldown: 3600})
	h.apply(&event.LiquidatorUpdate{Header: h.hdr(h.gov), Liquidator: h.keeper, Enabled: true})
	h.deposit(h.gov, 500_000*unit)
	h.deposit(h.alice, 100_000*unit)
	h.apply(&event.Stake{Header: h.hdr(h.gov), Beneficiary: h.gov, Amount: 500_000 * unit})
	h.setPrice(ethFeed, px(3000))
	return h
}

func (h *harness) hdr(caller uuid.UUID) event.Header {
	return event.Header{RequestID: uuid.New(), Caller: caller, Timestamp: h.clock}
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func (h *harness) apply(evt event.Event) *core.CoreOutput {
	h.t.Helper()
	out, err := h.eng.ProcessEvent(evt)
	require.NoError(h.t, err, "%s", evt.EventType())
	return out
}

func (h *harness) deposit(user uuid.UUID, amount fpmath.Amount) {
	h.t.Helper()
	h.apply(&event.CollateralDeposit{Header: h.hdr(h.gov), Account: user, Amount: amount})
}

func (h *harness) setPrice(feed string, p fpmath.Price) {
	h.t.Helper()
	h.priceSeq[feed]++
	h.apply(&event.OraclePriceUpdate{
		Feed:          feed,
		Price:         p,
		PriceSequence: h.priceSeq[feed],
		Timestamp:     h.clock,
	})
}

func (h *harness) openCmd(owner uuid.UUID, isLong bool, margin fpmath.Amount, l fpmath.Leverage) *event.OpenPosition {
	bound := px(1_000_000)
	if !isLong {
		bound = 1
	}
	return &event.OpenPosition{
		Header:          h.hdr(owner),
		Owner:           owner,
		Product:         ethID,
		IsLong:          isLong,
		Margin:          margin,
		Leverage:        l,
		AcceptablePrice: bound,
	}
}

func (h *harness) open(owner uuid.UUID, isLong bool, margin fpmath.Amount, l fpmath.Leverage) (*event.OpenPosition, error) {
	cmd := h.openCmd(owner, isLong, margin, l)
	_, err := h.eng.OpenPosition(cmd)
	return cmd, err
}

func (h *harness) mustOpen(owner uuid.UUID, isLong bool, margin fpmath.Amount, l fpmath.Leverage) state.Position {
	h.t.Helper()
	_, err := h.open(owner, isLong, margin, l)
	require.NoError(h.t, err)
	pos, ok := h.eng.GetPosition(owner, ethID, isLong)
	require.True(h.t, ok)
	return pos
}

// closeAny closes with a bound every price satisfies.
func (h *harness) closeAny(owner uuid.UUID, isLong bool, margin fpmath.Amount) (*event.PositionClosed, error) {
	bound := fpmath.Price(1)
	if !isLong {
		bound = px(1_000_000)
	}
	return h.eng.ClosePosition(&event.ClosePosition{
		Header:          h.hdr(owner),
		Owner:           owner,
		Product:         ethID,
		IsLong:          isLong,
		Margin:          margin,
		AcceptablePrice: bound,
	})
}

func (h *harness) collateral(user uuid.UUID) fpmath.Amount {
	return fpmath.Amount(h.eng.Balance(ledger.NewUserAccountKey(user, ledger.SubTypeCollateral)))
}

func (h *harness) margin(user uuid.UUID) fpmath.Amount {
	return fpmath.Amount(h.eng.Balance(ledger.NewUserAccountKey(user, ledger.SubTypeMargin)))
}

// drain returns every envelope persisted so far.
func (h *harness) drain() []*event.EventEnvelope {
	var out []*event.EventEnvelope
	for {
		select {
		case o := <-h.persist:
			out = append(out, o.Envelope)
		default:
			return out
		}
	}
}

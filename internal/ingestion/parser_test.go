package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"PerpVault/internal/event"
	"PerpVault/internal/ingestion"
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFromJSON(t *testing.T, subject string, v any) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return ingestion.RawEvent{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
		TermFunc:  func() {},
	}
}

func TestEventTypeForSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		wantErr bool
	}{
		{"perp.commands.OpenPosition", "OpenPosition", false},
		{"perp.commands.Stake.eu-1", "Stake", false},
		{"perp.feeds.prices.ETH-USD", "OraclePriceUpdate", false},
		{"perp.feeds.rates.7", "InterestRateUpdate", false},
		{"perp.commands.", "", true},
		{"perp.trades.BTC", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, err := ingestion.EventTypeForSubject(tt.subject)
			if tt.wantErr {
				assert.ErrorIs(t, err, ingestion.ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOpenPosition(t *testing.T) {
	owner := uuid.New()
	cmd := &event.OpenPosition{
		Header: event.Header{RequestID: uuid.New(), Caller: owner, Timestamp: time.Unix(1_700_000_000, 0).UTC()},
		Owner:  owner, Product: 2, IsLong: true,
		Margin: 1000e8, Leverage: 10 * fpmath.OneX, AcceptablePrice: 3100e8,
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, "perp.commands.OpenPosition", cmd), "OpenPosition")
	require.NoError(t, err)

	op, ok := evt.(*event.OpenPosition)
	require.True(t, ok, "got %T", evt)
	assert.Equal(t, cmd, op)
	assert.Equal(t, uint32(2), op.ProductID())
	assert.Equal(t, cmd.RequestID.String(), op.IdempotencyKey())
}

func TestParseRejectsUnattributedCommands(t *testing.T) {
	_, err := ingestion.ParseRawEvent(rawFromJSON(t, "perp.commands.Stake", map[string]any{
		"beneficiary": uuid.NewString(),
		"amount":      100,
		"timestamp":   time.Now(),
	}), "Stake")
	assert.ErrorIs(t, err, ingestion.ErrMalformed)

	_, err = ingestion.ParseRawEvent(rawFromJSON(t, "perp.commands.Stake", map[string]any{
		"request_id": uuid.NewString(),
		"amount":     100,
	}), "Stake")
	assert.ErrorIs(t, err, ingestion.ErrMalformed, "missing timestamp")

	_, err = ingestion.ParseRawEvent(ingestion.RawEvent{Data: []byte("{not json")}, "Stake")
	assert.ErrorIs(t, err, ingestion.ErrMalformed)

	_, err = ingestion.ParseRawEvent(ingestion.RawEvent{Data: []byte("{}")}, "TradeFill")
	assert.ErrorIs(t, err, ingestion.ErrMalformed)
}

func TestParsePriceFeed(t *testing.T) {
	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, "perp.feeds.prices.ETH-USD", map[string]any{
		"feed":         "ETH-USD",
		"price":        "3000.125",
		"sequence":     42,
		"timestamp_us": int64(1_700_000_000_000_000),
	}), "OraclePriceUpdate")
	require.NoError(t, err)

	pu, ok := evt.(*event.OraclePriceUpdate)
	require.True(t, ok)
	assert.Equal(t, fpmath.Price(3000_12500000), pu.Price)
	assert.Equal(t, int64(42), pu.PriceSequence)
	assert.Equal(t, "ETH-USD:price:42", pu.IdempotencyKey())
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), pu.Timestamp)

	for name, payload := range map[string]map[string]any{
		"too precise": {"feed": "ETH-USD", "price": "1.123456789", "sequence": 1},
		"not decimal": {"feed": "ETH-USD", "price": "abc", "sequence": 1},
		"no feed":     {"price": "1", "sequence": 1},
		"no sequence": {"feed": "ETH-USD", "price": "1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ingestion.ParseRawEvent(rawFromJSON(t, "perp.feeds.prices.ETH-USD", payload), "OraclePriceUpdate")
			assert.ErrorIs(t, err, ingestion.ErrMalformed)
		})
	}
}

func TestParseRateFeed(t *testing.T) {
	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, "perp.feeds.rates.3", map[string]any{
		"product_id":   "3",
		"rate":         "0.1",
		"epoch_id":     9,
		"timestamp_us": int64(1_700_000_000_000_000),
	}), "InterestRateUpdate")
	require.NoError(t, err)

	ru, ok := evt.(*event.InterestRateUpdate)
	require.True(t, ok)
	assert.Equal(t, uint32(3), ru.ProductID())
	assert.Equal(t, fpmath.BPS(1000), ru.Rate)
	assert.Equal(t, "3:rate:9", ru.IdempotencyKey())

	_, err = ingestion.ParseRawEvent(rawFromJSON(t, "perp.feeds.rates.0", map[string]any{
		"product_id": "0", "rate": "0.1",
	}), "InterestRateUpdate")
	assert.ErrorIs(t, err, ingestion.ErrMalformed)

	_, err = ingestion.ParseRawEvent(rawFromJSON(t, "perp.feeds.rates.3", map[string]any{
		"product_id": "3", "rate": "-0.1",
	}), "InterestRateUpdate")
	assert.ErrorIs(t, err, ingestion.ErrMalformed)
}

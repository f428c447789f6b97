package ingestion_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/ingestion"
	"PerpVault/internal/observability"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCore struct {
	got []event.Event
	err error
}

func (s *stubCore) Submit(_ context.Context, evt event.Event) (*core.CoreOutput, error) {
	s.got = append(s.got, evt)
	if s.err != nil {
		return nil, s.err
	}
	return &core.CoreOutput{Envelope: &event.EventEnvelope{Sequence: int64(len(s.got))}}, nil
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type settled struct{ ack, nak, term int }

func tracked(s *settled, subject string, data []byte) ingestion.RawEvent {
	return ingestion.RawEvent{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { s.ack++ },
		NakFunc:   func() { s.nak++ },
		TermFunc:  func() { s.term++ },
	}
}

func stakeJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(&event.Stake{
		Header:      event.Header{RequestID: uuid.New(), Caller: uuid.New(), Timestamp: time.Now().UTC()},
		Beneficiary: uuid.New(),
		Amount:      100e8,
	})
	require.NoError(t, err)
	return data
}

func dispatchAll(t *testing.T, c ingestion.Submitter, m *observability.Metrics, raws ...ingestion.RawEvent) {
	t.Helper()
	ch := make(chan ingestion.RawEvent, len(raws))
	for _, r := range raws {
		ch <- r
	}
	close(ch)
	require.NoError(t, ingestion.NewDispatcher(ch, c, m, zerolog.Nop()).Run(context.Background()))
}

func TestDispatcher_SettlesByOutcome(t *testing.T) {
	m := observability.NewMetricsWith(prometheus.NewRegistry())
	var s settled

	dispatchAll(t, &stubCore{}, m,
		tracked(&s, "perp.commands.Stake", stakeJSON(t)),
		tracked(&s, "perp.commands.Stake", []byte("garbage")),
		tracked(&s, "perp.unknown", []byte("{}")),
	)
	assert.Equal(t, settled{ack: 1, term: 2}, s)
	assert.Equal(t, 1.0, counterValue(t, m.IngestMessages.WithLabelValues("nats", "applied")))
	assert.Equal(t, 2.0, counterValue(t, m.IngestMessages.WithLabelValues("nats", "malformed")))
}

func TestDispatcher_RejectionsAreAckedClosedInboxIsRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want settled
	}{
		{"business rejection", fmt.Errorf("%w: cap", core.ErrDepositCapExceeded), settled{ack: 1}},
		{"duplicate", fmt.Errorf("%w: Stake x", core.ErrDuplicate), settled{ack: 1}},
		{"inbox closed", core.ErrInboxClosed, settled{nak: 1}},
		{"deadline", context.DeadlineExceeded, settled{nak: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s settled
			dispatchAll(t, &stubCore{err: tt.err}, nil, tracked(&s, "perp.commands.Stake", stakeJSON(t)))
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestGRPCIngestService(t *testing.T) {
	c := &stubCore{}
	svc := ingestion.NewGRPCIngestService(c, nil)

	out, err := svc.SubmitEvent(context.Background(), "Stake", stakeJSON(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Envelope.Sequence)

	_, err = svc.SubmitEvent(context.Background(), "Stake", []byte(`{"amount":1}`))
	assert.ErrorIs(t, err, ingestion.ErrMalformed)

	_, err = svc.InjectOraclePrice(context.Background(), "BTC-USD", "65000.5", 3)
	require.NoError(t, err)
	require.Len(t, c.got, 2)
	pu := c.got[1].(*event.OraclePriceUpdate)
	assert.Equal(t, "BTC-USD:price:3", pu.IdempotencyKey())

	_, err = svc.InjectOraclePrice(context.Background(), "BTC-USD", "1", 0)
	assert.ErrorIs(t, err, ingestion.ErrMalformed)
}

type fakeJS struct {
	subjects []string
	bodies   [][]byte
}

func (f *fakeJS) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, payload)
	return &jetstream.PubAck{Sequence: uint64(len(f.subjects))}, nil
}

func TestOutboundPublisher(t *testing.T) {
	js := &fakeJS{}
	ch := make(chan event.Record, 2)
	ch <- &event.Staked{Amount: 5e8, Shares: 5e8}
	ch <- &event.PositionClosed{PositionID: uuid.New(), Liquidated: true}
	close(ch)

	require.NoError(t, ingestion.NewOutboundPublisher(js, ch, zerolog.Nop()).Run(context.Background()))
	assert.Equal(t, []string{"perp.vault.records.staked", "perp.vault.records.position_closed"}, js.subjects)

	var msg struct {
		Record  string         `json:"record"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(js.bodies[1], &msg))
	assert.Equal(t, "position_closed", msg.Record)
	assert.Equal(t, true, msg.Payload["liquidated"])
}

package ingestion

import (
	"context"
	"fmt"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/observability"
)

// GRPCIngestService is the RPC ingress. It is meant for operators and
// manual injection, not for high-throughput ingestion (use NATS for that),
// and shares the parser so both paths accept the same payloads.
type GRPCIngestService struct {
	core    Submitter
	metrics *observability.Metrics
}

func NewGRPCIngestService(core Submitter, metrics *observability.Metrics) *GRPCIngestService {
	return &GRPCIngestService{core: core, metrics: metrics}
}

// SubmitEvent parses payload as eventType and waits for the core's verdict.
func (s *GRPCIngestService) SubmitEvent(ctx context.Context, eventType string, payload []byte) (*core.CoreOutput, error) {
	evt, err := ParseRawEvent(RawEvent{Subject: "grpc", Data: payload, Timestamp: time.Now()}, eventType)
	if err != nil {
		s.count("malformed")
		return nil, err
	}
	return s.submit(ctx, evt)
}

// InjectOraclePrice pushes a price update given as a decimal string.
func (s *GRPCIngestService) InjectOraclePrice(ctx context.Context, feed, price string, sequence int64) (*core.CoreOutput, error) {
	if sequence <= 0 {
		return nil, fmt.Errorf("%w: sequence must be positive", ErrMalformed)
	}
	evt, err := parsePriceFeed([]byte(fmt.Sprintf(
		`{"feed":%q,"price":%q,"sequence":%d,"timestamp_us":%d}`,
		feed, price, sequence, time.Now().UnixMicro())))
	if err != nil {
		s.count("malformed")
		return nil, err
	}
	return s.submit(ctx, evt)
}

func (s *GRPCIngestService) submit(ctx context.Context, evt event.Event) (*core.CoreOutput, error) {
	out, err := s.core.Submit(ctx, evt)
	if err != nil {
		s.count("rejected")
		return nil, err
	}
	s.count("applied")
	return out, nil
}

func (s *GRPCIngestService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IngestMessages.WithLabelValues("grpc", outcome).Inc()
	}
}

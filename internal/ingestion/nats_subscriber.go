package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to NATS JetStream subjects and hands raw
// messages to the Dispatcher. JetStream is the high-throughput ingress;
// gRPC is for operators and manual injection.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawEvent is an inbound message that has not been parsed yet.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // processed, including business rejections
	NakFunc   func() // not processed, redeliver
	TermFunc  func() // unparseable, never redeliver
}

// SubjectConfig binds a consumer to a subject filter.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perp.commands.>", ConsumerName: "vault-commands", StreamName: "PERP_COMMANDS"},
		{Subject: "perp.feeds.prices.>", ConsumerName: "vault-prices", StreamName: "PERP_FEEDS"},
		{Subject: "perp.feeds.rates.>", ConsumerName: "vault-rates", StreamName: "PERP_FEEDS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		log:       log.With().Str("component", "nats").Logger(),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { _ = msg.Ack() },
				NakFunc:   func() { _ = msg.Nak() },
				TermFunc:  func() { _ = msg.Term() },
			}
			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumeCtx)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

// EnsureStreams creates the inbound JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "PERP_COMMANDS",
			Subjects:  []string{"perp.commands.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERP_FEEDS",
			Subjects:  []string{"perp.feeds.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// Stop stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream handle.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("perpvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// Submitter is the core inbox as seen by ingress.
type Submitter interface {
	Submit(ctx context.Context, evt event.Event) (*core.CoreOutput, error)
}

// Dispatcher parses raw messages and submits them to the core, one at a
// time so per-subject order is preserved.
type Dispatcher struct {
	in      <-chan RawEvent
	core    Submitter
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewDispatcher(in <-chan RawEvent, core Submitter, metrics *observability.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{in: in, core: core, metrics: metrics, log: log.With().Str("component", "dispatcher").Logger()}
}

// Run blocks until ctx is cancelled or the input channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-d.in:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawEvent) {
	outcome := d.process(ctx, raw)
	if d.metrics != nil {
		d.metrics.IngestMessages.WithLabelValues("nats", outcome).Inc()
	}
}

// process returns the outcome label and settles the message.
func (d *Dispatcher) process(ctx context.Context, raw RawEvent) string {
	name, err := EventTypeForSubject(raw.Subject)
	if err == nil {
		var evt event.Event
		evt, err = ParseRawEvent(raw, name)
		if err == nil {
			_, err = d.core.Submit(ctx, evt)
			if d.metrics != nil && err == nil {
				d.metrics.IngestToApply.WithLabelValues(name).Observe(time.Since(raw.Timestamp).Seconds())
			}
		}
	}

	switch {
	case err == nil:
		settle(raw.AckFunc)
		return "applied"
	case errors.Is(err, ErrMalformed):
		d.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed message")
		settle(raw.TermFunc)
		return "malformed"
	case errors.Is(err, core.ErrDuplicate):
		settle(raw.AckFunc)
		return "duplicate"
	case errors.Is(err, core.ErrInboxClosed), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		settle(raw.NakFunc)
		return "retry"
	default:
		// The core rejected the command; redelivery would be rejected
		// again.
		d.log.Info().Err(err).Str("subject", raw.Subject).Msg("command rejected")
		settle(raw.AckFunc)
		return "rejected"
	}
}

func settle(fn func()) {
	if fn != nil {
		fn()
	}
}

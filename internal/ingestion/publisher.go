package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PerpVault/internal/event"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// RecordSubjectPrefix is where outbound records are published, one subject
// per record kind: perp.vault.records.position_closed and so on.
const RecordSubjectPrefix = "perp.vault.records."

// JetStreamPublisher is the slice of jetstream.JetStream the publisher uses.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes core records to NATS for indexers. Records
// arrive on a lossy channel; consumers that need every change read the
// event log instead.
type OutboundPublisher struct {
	js        JetStreamPublisher
	inputChan <-chan event.Record
	log       zerolog.Logger
}

// RecordMessage is the JSON body of an outbound message.
type RecordMessage struct {
	Record      string       `json:"record"`
	Payload     event.Record `json:"payload"`
	PublishedAt time.Time    `json:"published_at"`
}

func NewOutboundPublisher(js JetStreamPublisher, inputChan <-chan event.Record, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log.With().Str("component", "publisher").Logger(),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, rec); err != nil {
				op.log.Warn().Err(err).Str("record", rec.RecordName()).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, rec event.Record) error {
	data, err := json.Marshal(RecordMessage{
		Record:      rec.RecordName(),
		Payload:     rec,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = op.js.Publish(ctx, RecordSubjectPrefix+rec.RecordName(), data)
	return err
}

// EnsureOutboundStream creates the outbound records stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_VAULT_RECORDS",
		Subjects:  []string{RecordSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}

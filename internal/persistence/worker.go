package persistence

import (
	"context"
	"database/sql"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/observability"

	"github.com/rs/zerolog"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The core sends on that channel with a blocking send, so if this worker
// falls behind the core stalls and no event is ever dropped.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *EventLogWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &PersistenceWorker{
		db:           db,
		writer:       NewEventLogWriter(),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// pending accumulates rows between flushes.
type pending struct {
	events   []EventRow
	journals []JournalRow
}

func (p *pending) add(out core.CoreOutput) {
	p.events = append(p.events, EventRowFromEnvelope(out.Envelope))
	p.journals = append(p.journals, JournalRowsFromBatch(out.Batch)...)
}

func (p *pending) reset() {
	p.events = p.events[:0]
	p.journals = p.journals[:0]
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the channel closes.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := &pending{
		events:   make([]EventRow, 0, pw.batchSize),
		journals: make([]JournalRow, 0, pw.batchSize*4),
	}

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch.events) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.log.Error().Err(err).Int("events", len(batch.events)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				if len(batch.events) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						pw.log.Error().Err(err).Int("events", len(batch.events)).Msg("final flush failed")
					}
				}
				return nil
			}
			batch.add(out)
			if len(batch.events) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.log.Error().Err(err).Msg("batch flush failed")
				}
				batch.reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch.events) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.log.Error().Err(err).Msg("timeout flush failed")
				}
				batch.reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled, in which case one last attempt runs detached.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch *pending) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch.events)).Msg("persistence retry")
			select {
			case <-ctx.Done():
				return pw.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues(errorClass(err)).Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch *pending) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := pw.writer.WriteEventBatch(ctx, tx, batch.events); err != nil {
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, batch.journals); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if m := pw.metrics; m != nil {
		m.PersistBatchDur.Observe(time.Since(start).Seconds())
		m.PersistEventsWritten.Add(float64(len(batch.events)))
		m.PersistJournalsWritten.Add(float64(len(batch.journals)))
		m.PersistLastSequence.Set(float64(batch.events[len(batch.events)-1].Sequence))
	}
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventRow is a row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	ProductID      int64
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	OccurredAt     time.Time
}

// JournalRow is a row in event_log.journal.
type JournalRow struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   string
	TimestampUs   int64
}

// EventRowFromEnvelope flattens an envelope for storage.
func EventRowFromEnvelope(env *event.EventEnvelope) EventRow {
	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		ProductID:      int64(env.ProductID),
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		OccurredAt:     env.Timestamp.UTC(),
	}
}

// JournalRowsFromBatch flattens the journals of a committed batch.
func JournalRowsFromBatch(b *ledger.Batch) []JournalRow {
	if b == nil {
		return nil
	}
	rows := make([]JournalRow, 0, len(b.Journals))
	for _, j := range b.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID,
			BatchID:       j.BatchID,
			EventRef:      j.EventRef,
			Sequence:      b.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			TimestampUs:   j.Timestamp,
		})
	}
	return rows
}

// EnvelopeFromRow rebuilds the envelope stored by EventRowFromEnvelope.
func EnvelopeFromRow(r EventRow) (*event.EventEnvelope, error) {
	et, err := event.ParseEventType(r.EventType)
	if err != nil {
		return nil, err
	}
	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      et,
		ProductID:      uint32(r.ProductID),
		Timestamp:      r.OccurredAt.UTC(),
		Payload:        r.Payload,
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: malformed hash", r.Sequence)
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

// EventLogWriter writes events with multi-row INSERT and journals with
// COPY. Both run inside the caller's transaction so a batch lands whole.
type EventLogWriter struct{}

func NewEventLogWriter() *EventLogWriter {
	return &EventLogWriter{}
}

// WriteEventBatch inserts events; rows already present are skipped so a
// retried flush is harmless.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 8
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		base := i * cols
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.ProductID,
			string(e.Payload), e.StateHash, e.PrevHash, e.OccurredAt,
		)
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, product_id, payload, state_hash, prev_hash, occurred_at)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch streams journals through COPY. Journals of events
// already persisted are removed first, which keeps COPY (which has no
// ON CONFLICT) safe to retry.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}
	ids := make([]string, len(journals))
	for i, j := range journals {
		ids[i] = j.JournalID.String()
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM event_log.journal WHERE journal_id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return fmt.Errorf("clear journals: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("event_log", "journal",
		"journal_id", "batch_id", "event_ref", "sequence",
		"debit_account", "credit_account", "amount", "journal_type", "timestamp_us"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, j := range journals {
		if _, err := stmt.ExecContext(ctx,
			j.JournalID.String(), j.BatchID.String(), j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType, j.TimestampUs,
		); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy journal %s: %w", j.JournalID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	return stmt.Close()
}

// errorClass labels a write error for metrics using the Postgres error
// class when the driver reports one.
func errorClass(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return "constraint"
		case "40":
			return "serialization"
		case "08":
			return "connection"
		default:
			return "pg_" + string(pqErr.Code.Class())
		}
	}
	return "other"
}

package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/event"
	"PerpVault/internal/observability"

	"github.com/rs/zerolog"
)

const workerID = "main"

// ProjectionWorker updates projection tables from committed outputs.
// The projection channel is fed with non-blocking sends, so a slow worker
// drops outputs instead of stalling the core. A dropped output shows up
// here as a sequence gap; projections are then stale until Rebuild runs.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger

	lastSeq int64
	gaps    int
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput,
	metrics *observability.Metrics, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log.With().Str("component", "projection").Logger(),
	}
}

// Resume sets the last applied sequence, normally read from the watermark.
func (pw *ProjectionWorker) Resume(seq int64) { pw.lastSeq = seq }

// Gaps reports how many sequence gaps the worker has observed.
func (pw *ProjectionWorker) Gaps() int { return pw.gaps }

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			seq := output.Envelope.Sequence
			if seq <= pw.lastSeq {
				continue
			}
			if pw.lastSeq > 0 && seq != pw.lastSeq+1 {
				pw.gaps++
				pw.log.Warn().Int64("expected", pw.lastSeq+1).Int64("got", seq).
					Msg("projection gap, rebuild required")
			}

			if err := pw.Apply(ctx, Plan(output)); err != nil {
				// Projections are eventually consistent and can be rebuilt
				// from the event log.
				pw.log.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
			}
			pw.lastSeq = seq
		}
	}
}

// Apply writes one update and advances the watermark in a single tx.
func (pw *ProjectionWorker) Apply(ctx context.Context, u Update) error {
	start := time.Now()
	defer func() {
		if pw.metrics != nil {
			pw.metrics.ProjectionUpdateDur.WithLabelValues("all").Observe(time.Since(start).Seconds())
		}
	}()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyUpdate(ctx, tx, u); err != nil {
		return err
	}
	if err := setWatermark(ctx, tx, u.Sequence); err != nil {
		return err
	}
	return tx.Commit()
}

func applyUpdate(ctx context.Context, tx *sql.Tx, u Update) error {
	for path, delta := range u.Balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (account_path, balance, last_sequence)
			VALUES ($1, $2, $3)
			ON CONFLICT (account_path)
			DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
		`, path, delta, u.Sequence); err != nil {
			return fmt.Errorf("balance %s: %w", path, err)
		}
	}

	for _, p := range u.Positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions
				(position_id, owner, product_id, is_long, margin, leverage, price,
				 oracle_price, funding, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (position_id) DO UPDATE SET
				margin = $5, leverage = $6, price = $7, oracle_price = $8,
				funding = projections.positions.funding + $9,
				last_sequence = $10, updated_at = $11
		`, p.PositionID, p.Owner, int64(p.ProductID), p.IsLong, int64(p.Margin), int64(p.Leverage),
			int64(p.Price), int64(p.OraclePrice), int64(p.Funding), u.Sequence, u.OccurredAt); err != nil {
			return fmt.Errorf("position %s: %w", p.PositionID, err)
		}
	}

	for _, c := range u.Closes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET margin = margin - $2, funding = funding + $3, last_sequence = $4, updated_at = $5
			WHERE position_id = $1
		`, c.PositionID, int64(c.Margin), int64(c.Funding), u.Sequence, u.OccurredAt); err != nil {
			return fmt.Errorf("close %s: %w", c.PositionID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM projections.positions WHERE position_id = $1 AND margin <= 0
		`, c.PositionID); err != nil {
			return fmt.Errorf("close %s: %w", c.PositionID, err)
		}
	}

	for _, s := range u.Stakes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.stakes (owner, shares, staked, redeemed, last_sequence)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner) DO UPDATE SET
				shares = projections.stakes.shares + $2,
				staked = projections.stakes.staked + $3,
				redeemed = projections.stakes.redeemed + $4,
				last_sequence = $5
		`, s.Owner, int64(s.Shares), int64(s.Staked), int64(s.Redeemed), u.Sequence); err != nil {
			return fmt.Errorf("stake %s: %w", s.Owner, err)
		}
	}

	for _, t := range u.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.trade_history
				(sequence, position_id, owner, product_id, is_long, action, price, margin,
				 leverage, fee, funding, pnl, liquidator, liquidator_reward, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (sequence, position_id) DO NOTHING
		`, u.Sequence, t.PositionID, t.Owner, int64(t.ProductID), t.IsLong, t.Action, int64(t.Price),
			int64(t.Margin), int64(t.Leverage), int64(t.Fee), int64(t.Funding), int64(t.PnL),
			t.Liquidator, int64(t.LiquidatorReward), u.OccurredAt); err != nil {
			return fmt.Errorf("trade %s: %w", t.PositionID, err)
		}
	}

	for _, f := range u.Funding {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.funding_history
				(sequence, position_id, owner, product_id, payment, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (sequence, position_id) DO NOTHING
		`, u.Sequence, f.PositionID, f.Owner, int64(f.ProductID), int64(f.Payment), u.OccurredAt); err != nil {
			return fmt.Errorf("funding %s: %w", f.PositionID, err)
		}
	}
	return nil
}

func setWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

// Watermark returns the last sequence the projections reflect.
func Watermark(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = $1`, workerID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// EventSource pages through the event log.
type EventSource interface {
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error)
}

// RebuildProjections truncates every projection table and replays the
// event log through a fresh engine. Projections hold position and stake
// detail the journal alone cannot reproduce, so the rebuild needs the
// engine's records, not just balances.
func RebuildProjections(ctx context.Context, db *sql.DB, src EventSource, eng *core.Engine, log zerolog.Logger) (int64, error) {
	for _, stmt := range []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.stakes`,
		`TRUNCATE projections.trade_history`,
		`TRUNCATE projections.funding_history`,
		`DELETE FROM projections.watermark`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("truncate failed: %w", err)
		}
	}

	const page = 1000
	var applied int64
	from := int64(1)
	for {
		envs, err := src.LoadEventsFrom(ctx, from, page)
		if err != nil {
			return applied, fmt.Errorf("load events from %d: %w", from, err)
		}
		if len(envs) == 0 {
			break
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		for _, env := range envs {
			out, err := eng.Replay(env)
			if err != nil {
				tx.Rollback()
				return applied, fmt.Errorf("replay %d: %w", env.Sequence, err)
			}
			if err := applyUpdate(ctx, tx, Plan(*out)); err != nil {
				tx.Rollback()
				return applied, err
			}
			applied++
			from = env.Sequence + 1
		}
		if err := setWatermark(ctx, tx, from-1); err != nil {
			tx.Rollback()
			return applied, err
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
	}

	log.Info().Int64("events", applied).Msg("projection rebuild complete")
	return applied, nil
}

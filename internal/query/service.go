package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fpmath "PerpVault/internal/math"
	"PerpVault/internal/observability"

	"github.com/google/uuid"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// QueryService provides read-only access to projection tables. Every
// response carries as_of_sequence, the projection watermark it was read
// at, since projections trail the core.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// observe records latency and outcome for endpoint. Call as
// defer qs.observe("name", &err)().
func (qs *QueryService) observe(endpoint string, err *error) func() {
	start := time.Now()
	return func() {
		if qs.metrics == nil {
			return
		}
		status := "ok"
		if *err != nil {
			status = "error"
		}
		qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
		qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

// GetPositions returns every open position owned by owner.
func (qs *QueryService) GetPositions(ctx context.Context, owner uuid.UUID) (out []PositionResponse, err error) {
	defer qs.observe("positions", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT position_id, product_id, is_long, margin, leverage, price,
		       oracle_price, funding, updated_at
		FROM projections.positions
		WHERE owner = $1
		ORDER BY product_id, is_long DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                                                  PositionResponse
			product                                            int64
			margin, leverage, price, oraclePrice, fundingTotal int64
		)
		if err := rows.Scan(&p.PositionID, &product, &p.IsLong, &margin, &leverage, &price,
			&oraclePrice, &fundingTotal, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Owner = owner
		p.ProductID = uint32(product)
		p.Margin = fpmath.Amount(margin).String()
		p.Leverage = fpmath.Leverage(leverage).String()
		if notional, err := fpmath.Notional(fpmath.Amount(margin), fpmath.Leverage(leverage)); err == nil {
			p.Notional = notional.String()
		}
		p.Price = fpmath.Price(price).String()
		p.OraclePrice = fpmath.Price(oraclePrice).String()
		p.Funding = fpmath.Amount(fundingTotal).String()
		p.AsOfSequence = asOf
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStake returns one depositor's vault stake, or nil when none exists.
func (qs *QueryService) GetStake(ctx context.Context, owner uuid.UUID) (resp *StakeResponse, err error) {
	defer qs.observe("stake", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	var shares, staked, redeemed int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT shares, staked, redeemed FROM projections.stakes WHERE owner = $1
	`, owner).Scan(&shares, &staked, &redeemed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &StakeResponse{
		Owner:        owner,
		Shares:       fpmath.Amount(shares).String(),
		Staked:       fpmath.Amount(staked).String(),
		Redeemed:     fpmath.Amount(redeemed).String(),
		AsOfSequence: asOf,
	}, nil
}

// GetTradeHistory pages through owner's trades, newest first. before is
// an exclusive sequence cursor; zero starts at the newest trade.
func (qs *QueryService) GetTradeHistory(ctx context.Context, owner uuid.UUID, limit int, before int64) (page *Page[TradeResponse], err error) {
	defer qs.observe("trades", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	query := `
		SELECT sequence, position_id, product_id, is_long, action, price, margin,
		       leverage, fee, funding, pnl, liquidator, liquidator_reward, occurred_at
		FROM projections.trade_history
		WHERE owner = $1
	`
	args := []any{owner}
	if before > 0 {
		query += " AND sequence < $2"
		args = append(args, before)
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page = &Page[TradeResponse]{AsOfSequence: asOf}
	for rows.Next() {
		var (
			t                                               TradeResponse
			product                                         int64
			price, margin, leverage, fee, funding, pnl, rew int64
			liquidator                                      uuid.NullUUID
		)
		if err := rows.Scan(&t.Sequence, &t.PositionID, &product, &t.IsLong, &t.Action, &price, &margin,
			&leverage, &fee, &funding, &pnl, &liquidator, &rew, &t.OccurredAt); err != nil {
			return nil, err
		}
		t.ProductID = uint32(product)
		t.Price = fpmath.Price(price).String()
		t.Margin = fpmath.Amount(margin).String()
		t.Leverage = fpmath.Leverage(leverage).String()
		t.Fee = fpmath.Amount(fee).String()
		t.Funding = fpmath.Amount(funding).String()
		t.PnL = fpmath.Amount(pnl).String()
		if liquidator.Valid {
			t.Liquidator = &liquidator.UUID
			t.LiquidatorReward = fpmath.Amount(rew).String()
		}
		page.Items = append(page.Items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page.Items) == limit {
		page.NextCursor = page.Items[len(page.Items)-1].Sequence
	}
	return page, nil
}

// GetFundingHistory pages through owner's funding settlements, newest
// first, optionally restricted to one product.
func (qs *QueryService) GetFundingHistory(ctx context.Context, owner uuid.UUID, product *uint32, limit int, before int64) (page *Page[FundingHistoryResponse], err error) {
	defer qs.observe("funding", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	query := `
		SELECT sequence, position_id, product_id, payment, occurred_at
		FROM projections.funding_history
		WHERE owner = $1
	`
	args := []any{owner}
	argIdx := 2
	if product != nil {
		query += fmt.Sprintf(" AND product_id = $%d", argIdx)
		args = append(args, int64(*product))
		argIdx++
	}
	if before > 0 {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, before)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page = &Page[FundingHistoryResponse]{AsOfSequence: asOf}
	for rows.Next() {
		var (
			h                FundingHistoryResponse
			productID, value int64
		)
		if err := rows.Scan(&h.Sequence, &h.PositionID, &productID, &value, &h.OccurredAt); err != nil {
			return nil, err
		}
		h.ProductID = uint32(productID)
		h.Payment = fpmath.Amount(value).String()
		page.Items = append(page.Items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(page.Items) == limit {
		page.NextCursor = page.Items[len(page.Items)-1].Sequence
	}
	return page, nil
}

// GetJournalHistory returns journal entries touching any of owner's
// accounts, newest first.
func (qs *QueryService) GetJournalHistory(ctx context.Context, owner uuid.UUID, limit int, before int64) (page *Page[JournalHistoryEntry], err error) {
	defer qs.observe("journals", &err)()

	limit = clampLimit(limit)
	accountPrefix := fmt.Sprintf("user:%s:%%", owner)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp_us
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	if before > 0 {
		query += " AND sequence < $2"
		args = append(args, before)
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC, journal_id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page = &Page[JournalHistoryEntry]{}
	for rows.Next() {
		var (
			e      JournalHistoryEntry
			amount int64
		)
		if err := rows.Scan(&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &amount, &e.JournalType, &e.TimestampUs); err != nil {
			return nil, err
		}
		e.Amount = fpmath.Amount(amount).String()
		page.Items = append(page.Items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	n := len(page.Items)
	if n == 0 {
		return page, nil
	}
	page.AsOfSequence = page.Items[0].Sequence
	if n == limit {
		// A batch can straddle the page boundary. Hold its legs back so
		// the next page returns the batch whole.
		last := page.Items[n-1].Sequence
		i := n
		for i > 0 && page.Items[i-1].Sequence == last {
			i--
		}
		if i == 0 {
			page.NextCursor = last
		} else {
			page.Items = page.Items[:i]
			page.NextCursor = last + 1
		}
	}
	return page, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain and that projected balances sum
// to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer qs.observe("verify_integrity", &err)()

	report = &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash <> e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM projections.balances
	`).Scan(&report.Imbalance); err != nil {
		return nil, err
	}

	var head sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&head); err != nil {
		return nil, err
	}
	watermark, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	report.ProjectionLag = head.Int64 - watermark

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.Imbalance == 0
	return report, nil
}

// Watermark returns the last sequence the projections reflect.
func (qs *QueryService) Watermark(ctx context.Context) (int64, error) {
	return qs.getWatermark(ctx)
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

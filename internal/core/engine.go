package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/observability"
	"PerpVault/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultIdempotencyCapacity is the LRU size used when Options leaves it zero.
const DefaultIdempotencyCapacity = 1_000_000

// DefaultMaxClockSkew bounds how far ahead of the core's clock an input may
// be stamped.
const DefaultMaxClockSkew = 10 * time.Second

// Engine is the single-threaded deterministic core. Every command is
// validated against one snapshot of the store, staged in a ChangeSet and a
// journal Batch, and committed only when both are valid.
// Not thread-safe: drive it from one goroutine (see Inbox).
type Engine struct {
	store       *state.MemStore
	sequence    int64 // last committed sequence
	lastTime    int64 // effective time of the last commit, unix micros
	hasher      *StateHasher
	tracker     *ledger.BalanceTracker
	validator   *ledger.InvariantValidator
	idempotency *IdempotencyChecker
	feeds       *SequenceValidator
	metrics     *observability.Metrics
	log         zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	publishChan    chan<- event.Record

	clock   func() time.Time
	maxSkew time.Duration

	replaying bool
}

// CoreOutput is everything one committed command produced.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
	Records  []event.Record
}

// Options wires the engine to its collaborators. Every field is optional.
type Options struct {
	IdempotencyCapacity int
	DB                  DBIdempotencyChecker
	Metrics             *observability.Metrics
	Logger              *zerolog.Logger

	// Clock and MaxClockSkew reject inputs stamped too far in the future.
	// Replay skips the check. Defaults: time.Now and DefaultMaxClockSkew.
	Clock        func() time.Time
	MaxClockSkew time.Duration

	PersistChan    chan<- CoreOutput   // blocking send
	ProjectionChan chan<- CoreOutput   // non-blocking send
	PublishChan    chan<- event.Record // non-blocking send
}

// NewEngine creates an engine over store.
func NewEngine(store *state.MemStore, opts Options) *Engine {
	capacity := opts.IdempotencyCapacity
	if capacity <= 0 {
		capacity = DefaultIdempotencyCapacity
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	maxSkew := opts.MaxClockSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}

	tracker := ledger.NewBalanceTracker()
	e := &Engine{
		store:          store,
		hasher:         NewStateHasher(),
		tracker:        tracker,
		validator:      ledger.NewInvariantValidator(tracker),
		idempotency:    NewIdempotencyChecker(capacity, opts.DB),
		feeds:          NewSequenceValidator(),
		metrics:        opts.Metrics,
		log:            log,
		persistChan:    opts.PersistChan,
		projectionChan: opts.ProjectionChan,
		publishChan:    opts.PublishChan,
		clock:          clock,
		maxSkew:        maxSkew,
	}

	if m := e.metrics; m != nil {
		e.idempotency.OnDuplicate(func(eventType, tier string) {
			m.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
		})
		e.feeds.onGap = func(partition string, _, _ int64) {
			m.FeedSequenceGap.WithLabelValues(partition).Inc()
		}
		e.feeds.onStale = func(partition string) {
			m.FeedStale.WithLabelValues(partition).Inc()
		}
	}
	return e
}

// txn is the working set of one command.
type txn struct {
	store   state.LedgerStore
	tracker *ledger.BalanceTracker
	cs      *state.ChangeSet
	gen     *ledger.JournalGenerator
	records []event.Record
	now     int64 // unix seconds
}

// collateral returns the user's free collateral including legs already
// staged by this command.
func (tx *txn) collateral(user uuid.UUID) fpmath.Amount {
	key := ledger.NewUserAccountKey(user, ledger.SubTypeCollateral)
	bal := tx.tracker.GetBalance(key)
	for _, j := range tx.gen.Batch().Journals {
		if j.DebitAccount == key {
			bal += j.Amount
		}
		if j.CreditAccount == key {
			bal -= j.Amount
		}
	}
	return fpmath.Amount(bal)
}

func (tx *txn) emit(r event.Record) {
	tx.records = append(tx.records, r)
}

// ProcessEvent validates and commits one command.
func (e *Engine) ProcessEvent(evt event.Event) (*CoreOutput, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	key := evt.IdempotencyKey()

	if !e.replaying && e.idempotency.IsDuplicate(eventType, key) {
		e.reject(eventType, ErrDuplicate)
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicate, eventType, key)
	}

	at, err := e.effectiveTime(evt.OccurredAt())
	if err != nil {
		e.reject(eventType, err)
		return nil, err
	}
	tx := &txn{
		store:   e.store,
		tracker: e.tracker,
		cs:      state.NewChangeSet(),
		gen:     ledger.NewJournalGenerator(eventType+":"+key, at.UnixMicro()),
		now:     at.Unix(),
	}
	if err := e.dispatch(tx, evt); err != nil {
		e.reject(eventType, err)
		return nil, err
	}

	batch := tx.gen.Batch()
	if err := e.validator.ValidateBatchBalance(batch); err != nil {
		panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
	}
	if err := e.tracker.CheckBatch(batch); err != nil {
		err = fmt.Errorf("%w: %v", ErrInsufficientCollateral, err)
		e.reject(eventType, err)
		return nil, err
	}
	payload, err := event.Encode(evt)
	if err != nil {
		e.reject(eventType, err)
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}

	// Nothing below may fail without corrupting state.
	seq := e.sequence + 1
	batch.Stamp(seq)
	e.store.Commit(tx.cs)
	if err := e.tracker.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: apply batch seq=%d: %v", seq, err))
	}
	if err := e.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at seq=%d: %v", seq, err))
	}
	e.sequence = seq
	e.lastTime = at.UnixMicro()

	prev := e.hasher.GetPrevHash()
	hash := e.hasher.ComputeHash(seq, e.stateDigest())

	out := &CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       seq,
			IdempotencyKey: key,
			EventType:      evt.EventType(),
			ProductID:      evt.ProductID(),
			Timestamp:      at,
			Payload:        payload,
			StateHash:      hash,
			PrevHash:       prev,
		},
		Batch:   batch,
		Records: tx.records,
	}

	e.idempotency.MarkProcessed(eventType, key)
	e.emit(out)
	e.observe(evt, out, start)

	e.log.Debug().
		Int64("sequence", seq).
		Str("event_type", eventType).
		Uint32("product_id", evt.ProductID()).
		Int("journals", len(batch.Journals)).
		Msg("event applied")

	return out, nil
}

// effectiveTime is the time a command executes at. The core clock never
// runs backwards: an input stamped before the last commit (a redelivery, a
// lagging feed) executes at the last commit's time. Inputs stamped beyond
// the skew window are rejected; replay skips that check because the log
// already accepted them.
func (e *Engine) effectiveTime(ts time.Time) (time.Time, error) {
	if !e.replaying {
		if limit := e.clock().Add(e.maxSkew); ts.After(limit) {
			return time.Time{}, fmt.Errorf("%w: %s is after %s", ErrFutureTimestamp,
				ts.UTC().Format(time.RFC3339), limit.UTC().Format(time.RFC3339))
		}
	}
	if us := ts.UnixMicro(); us < e.lastTime {
		return time.UnixMicro(e.lastTime).UTC(), nil
	}
	return ts.UTC(), nil
}

func (e *Engine) dispatch(tx *txn, evt event.Event) error {
	switch cmd := evt.(type) {
	case *event.OpenPosition:
		return e.applyOpen(tx, cmd)
	case *event.ClosePosition:
		return e.applyClose(tx, cmd)
	case *event.ModifyMargin:
		return e.applyModifyMargin(tx, cmd)
	case *event.LiquidatePosition:
		return e.applyLiquidation(tx, cmd)
	case *event.Stake:
		return e.applyStake(tx, cmd)
	case *event.Redeem:
		return e.applyRedeem(tx, cmd)
	case *event.FeeClaim:
		return e.applyFeeClaim(tx, cmd)
	case *event.CollateralDeposit:
		return e.applyDeposit(tx, cmd)
	case *event.CollateralWithdrawal:
		return e.applyWithdrawal(tx, cmd)
	case *event.OraclePriceUpdate:
		return e.applyOraclePrice(tx, cmd)
	case *event.InterestRateUpdate:
		return e.applyInterestRate(tx, cmd)
	case *event.ProductUpsert:
		return e.applyProductUpsert(tx, cmd)
	case *event.ParametersUpdate:
		return e.applyParameters(tx, cmd)
	case *event.LiquidationThresholdUpdate:
		return e.applyLiquidationThreshold(tx, cmd)
	case *event.MinMarginUpdate:
		return e.applyMinMargin(tx, cmd)
	case *event.VaultConfigUpdate:
		return e.applyVaultConfig(tx, cmd)
	case *event.ManagerUpdate:
		return e.applyManager(tx, cmd)
	case *event.LiquidatorUpdate:
		return e.applyLiquidator(tx, cmd)
	case *event.AccountManagerApproval:
		return e.applyAccountManager(tx, cmd)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, evt)
	}
}

// postCheckInvariants runs after every commit. A failure means the core
// computed something wrong, not that the request was bad.
func (e *Engine) postCheckInvariants(evt event.Event) error {
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		return err
	}

	v := e.store.Vault()
	if v.Balance < 0 {
		return fmt.Errorf("vault balance negative: %d", v.Balance)
	}
	if err := e.validator.ValidateMirror(ledger.VaultAccount, int64(v.Balance)); err != nil {
		return err
	}

	fp := e.store.FeePools()
	for key, want := range map[ledger.AccountKey]fpmath.Amount{
		ledger.ProtocolFeeAccount: fp.Protocol,
		ledger.StakingFeeAccount:  fp.Staking,
		ledger.VaultFeeAccount:    fp.Vault,
	} {
		if err := e.validator.ValidateMirror(key, int64(want)); err != nil {
			return err
		}
	}

	switch evt.(type) {
	case *event.Stake, *event.Redeem:
		var total fpmath.Amount
		for _, st := range e.store.Stakes() {
			total += st.Shares
		}
		if total != v.Shares {
			return fmt.Errorf("stake shares sum to %d, vault has %d", total, v.Shares)
		}
	}
	return nil
}

// stateDigest covers domain state, ledger balances and the core clock.
func (e *Engine) stateDigest() []byte {
	h := sha256.New()
	h.Write(e.store.Digest())
	h.Write(balancesDigest(e.tracker.Snapshot()))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(e.lastTime))
	h.Write(buf[:])
	return h.Sum(nil)
}

// emit hands the output to the workers. Persistence blocks so the log
// never loses an event; projections and publication drop under load and
// catch up from Postgres.
func (e *Engine) emit(out *CoreOutput) {
	if e.replaying {
		return
	}

	if e.persistChan != nil {
		select {
		case e.persistChan <- *out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- *out
		}
	}

	if e.projectionChan != nil {
		select {
		case e.projectionChan <- *out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	if e.publishChan != nil {
		for _, r := range out.Records {
			select {
			case e.publishChan <- r:
			default:
				if e.metrics != nil {
					e.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

func (e *Engine) reject(eventType string, err error) {
	if e.metrics != nil {
		e.metrics.CoreEventsRejected.WithLabelValues(eventType, rejectReason(err)).Inc()
	}
	e.log.Debug().Err(err).Str("event_type", eventType).Msg("event rejected")
}

func (e *Engine) observe(evt event.Event, out *CoreOutput, start time.Time) {
	m := e.metrics
	if m == nil {
		return
	}
	eventType := evt.EventType().String()
	m.CoreEventsApplied.WithLabelValues(eventType).Inc()
	m.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	m.CoreSequence.Set(float64(e.sequence))
	for _, j := range out.Batch.Journals {
		m.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
	}

	v := e.store.Vault()
	m.VaultBalance.Set(float64(v.Balance))
	m.VaultShares.Set(float64(v.Shares))
	fp := e.store.FeePools()
	m.FeePool.WithLabelValues("protocol").Set(float64(fp.Protocol))
	m.FeePool.WithLabelValues("staking").Set(float64(fp.Staking))
	m.FeePool.WithLabelValues("vault").Set(float64(fp.Vault))

	if pid := evt.ProductID(); pid != 0 {
		label := strconv.FormatUint(uint64(pid), 10)
		oi := e.store.OpenInterest(pid)
		m.OpenInterest.WithLabelValues(label, "long").Set(float64(oi.Long))
		m.OpenInterest.WithLabelValues(label, "short").Set(float64(oi.Short))
	}
	for _, r := range out.Records {
		switch rec := r.(type) {
		case *event.PositionClosed:
			if rec.Liquidated {
				m.Liquidations.WithLabelValues(strconv.FormatUint(uint64(rec.ProductID), 10)).Inc()
			}
		}
	}
}

// Replay re-applies a logged envelope during recovery and checks that it
// reproduces the logged sequence and state hash.
func (e *Engine) Replay(env *event.EventEnvelope) (*CoreOutput, error) {
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return nil, fmt.Errorf("replay seq=%d: %w", env.Sequence, err)
	}

	e.replaying = true
	out, err := e.ProcessEvent(evt)
	e.replaying = false
	if err != nil {
		return nil, fmt.Errorf("replay seq=%d: %w", env.Sequence, err)
	}

	if out.Envelope.Sequence != env.Sequence {
		return nil, fmt.Errorf("replay produced seq=%d, log has %d", out.Envelope.Sequence, env.Sequence)
	}
	if !bytes.Equal(out.Envelope.StateHash[:], env.StateHash[:]) {
		return nil, fmt.Errorf("replay seq=%d: state hash diverged", env.Sequence)
	}
	if e.metrics != nil {
		e.metrics.ReplayEventsTotal.Inc()
	}
	return out, nil
}

// GetSequence returns the last committed sequence.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// LastTime returns the effective time of the last commit.
func (e *Engine) LastTime() time.Time {
	return time.UnixMicro(e.lastTime).UTC()
}

// GetStateHash returns the chain tip.
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// Store exposes the committed state for read paths on the core goroutine.
func (e *Engine) Store() state.LedgerStore {
	return e.store
}

// Balance returns a ledger account balance.
func (e *Engine) Balance(key ledger.AccountKey) int64 {
	return e.tracker.GetBalance(key)
}

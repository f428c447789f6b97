package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the service exports.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreSequence       prometheus.Gauge

	// --- Economic state ---
	VaultBalance  prometheus.Gauge
	VaultShares   prometheus.Gauge
	OpenInterest  *prometheus.GaugeVec
	FeePool       *prometheus.GaugeVec
	Liquidations  *prometheus.CounterVec
	TradingVolume *prometheus.CounterVec

	// --- Channels & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & feed ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	FeedSequenceGap       *prometheus.CounterVec
	FeedStale             *prometheus.CounterVec

	// --- Ingestion ---
	IngestMessages *prometheus.CounterVec
	IngestToApply  *prometheus.HistogramVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot / replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Projections & query API ---
	ProjectionUpdateDur *prometheus.HistogramVec
	QueryRequests       *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
}

// NewMetrics registers every collector on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on reg. Tests use a fresh prometheus.NewRegistry()
// so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	dbBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		CoreEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_core_events_applied_total",
			Help: "Commands committed by the core",
		}, []string{"event_type"}),

		CoreEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_core_events_rejected_total",
			Help: "Commands rejected (duplicate, validation, economic guard)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpvault_core_event_apply_duration_seconds",
			Help:    "Time to apply a single command in the core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_core_sequence",
			Help: "Last committed global sequence",
		}),

		VaultBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_vault_balance",
			Help: "Vault balance in collateral units",
		}),

		VaultShares: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_vault_shares",
			Help: "Outstanding vault shares",
		}),

		OpenInterest: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpvault_open_interest",
			Help: "Open notional per product and side",
		}, []string{"product_id", "side"}),

		FeePool: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpvault_fee_pool",
			Help: "Unclaimed fee pool balance",
		}, []string{"pool"}),

		Liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_liquidations_total",
			Help: "Positions liquidated",
		}, []string{"product_id"}),

		TradingVolume: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_trading_volume",
			Help: "Traded notional in collateral units",
		}, []string{"product_id", "action"}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpvault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perpvault_channel_capacity",
			Help: "Channel capacity",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_projection_drops_total",
			Help: "Outputs dropped because a projection channel was full",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_publish_drops_total",
			Help: "Records dropped because the publish channel was full",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_persist_backpressure_total",
			Help: "Times the core blocked on the persist channel",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		FeedSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_feed_sequence_gap_total",
			Help: "Oracle or rate updates that skipped sequence numbers",
		}, []string{"partition"}),

		FeedStale: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_feed_stale_total",
			Help: "Oracle or rate updates older than the current mark",
		}, []string{"partition"}),

		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_ingest_messages_total",
			Help: "Inbound messages by source and outcome",
		}, []string{"source", "outcome"}),

		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpvault_ingest_to_apply_seconds",
			Help:    "Receive to core commit",
			Buckets: dbBuckets,
		}, []string{"event_type"}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpvault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: dbBuckets,
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_snapshot_size_bytes",
			Help: "Size of the last snapshot",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "perpvault_snapshot_last_sequence",
			Help: "Sequence of the last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "perpvault_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpvault_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: dbBuckets,
		}, []string{"projection"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perpvault_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perpvault_query_duration_seconds",
			Help:    "Query latency",
			Buckets: dbBuckets,
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel occupancy gauges.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}

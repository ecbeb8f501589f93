package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet_telemetry"

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Wallet source metrics ──────────────────────────────────────────────

var (
	SourceFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "fetch_total",
		Help:      "Total wallet source fetches by outcome.",
	}, []string{"status"})

	SourceFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of a single wallet source fetch, retries included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	SourceLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last aggregation with at least one wallet.",
	})

	PriceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "lookups_total",
		Help:      "Total price and rate lookups by symbol and outcome.",
	}, []string{"symbol", "status"})
)

// ── Ledger and scheduler metrics ───────────────────────────────────────

var (
	LedgerWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "writes_total",
		Help:      "Total daily ledger writes by outcome.",
	}, []string{"status"})

	SchedulerFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "fires_total",
		Help:      "Total scheduled job runs by job and outcome.",
	}, []string{"job", "status"})

	SchedulerNextFire = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "next_fire_timestamp",
		Help:      "Unix timestamp of the next scheduled daily run.",
	})
)

// ── Message delivery metrics ───────────────────────────────────────────

var (
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "sent_total",
		Help:      "Total chat messages successfully delivered.",
	}, []string{"kind"})

	MessagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "failed_total",
		Help:      "Total chat message delivery failures.",
	}, []string{"kind"})

	MessagesDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "deduplicated_total",
		Help:      "Total announcements suppressed by deduplication.",
	}, []string{"kind"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Total bot commands handled, by command.",
	}, []string{"command"})
)

// ── Business metrics ───────────────────────────────────────────────────

var (
	DailyTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "daily_total",
		Help:      "Last recorded daily ledger total, in token units.",
	})

	WalletsReporting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "wallets_reporting",
		Help:      "Number of wallets that answered in the last aggregation.",
	})
)

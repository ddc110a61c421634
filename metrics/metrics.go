package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coin_ledger"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	AdWatches        *prometheus.CounterVec
	RewardsCollected *prometheus.CounterVec
	SocialTasks      *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	CascadeFailures  *prometheus.CounterVec
	Reconciled       *prometheus.CounterVec
	StoreRetries     *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AdWatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "ad_watches_total",
				Help:      "Ad watch attempts by outcome",
			},
			[]string{"kind", "outcome"}, // outcome: recorded, limit_reached
		),
		RewardsCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "challenge_rewards_total",
				Help:      "Challenge reward collection attempts by outcome",
			},
			[]string{"category", "outcome"},
		),
		SocialTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "social_tasks_total",
				Help:      "Social task completions by outcome",
			},
			[]string{"task", "outcome"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "transitions_total",
				Help:      "Request status transitions",
			},
			[]string{"kind", "status"},
		),
		CascadeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "settlement_failures_total",
				Help:      "Terminal requests whose ledger effects could not be fully applied",
			},
			[]string{"kind"},
		),
		Reconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "reconciled_total",
				Help:      "Unsettled requests repaired by the reconciliation job",
			},
			[]string{"kind"},
		),
		StoreRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "transaction_retries_total",
				Help:      "Transaction attempts that lost a write conflict",
			},
			[]string{"collection"},
		),
	}
}

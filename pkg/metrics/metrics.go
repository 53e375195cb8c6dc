package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of admin HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_cycles_total",
			Help: "Total number of completed watch cycles.",
		},
	)

	ScopeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_scope_runs_total",
			Help: "Scope iterations by outcome.",
		},
		[]string{"scope", "mode", "result"}, // result: success, fetch_failed, store_failed, skipped, panic
	)

	ScopeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watcher_scope_duration_seconds",
			Help:    "Duration of one scope iteration.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"scope"},
	)

	NewListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_new_listings_total",
			Help: "Listings detected as new.",
		},
		[]string{"scope"},
	)

	PurgedListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_purged_listings_total",
			Help: "Known listing ids purged because they vanished from the source.",
		},
		[]string{"scope"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_fetch_attempts_total",
			Help: "Outbound fetch attempts.",
		},
		[]string{"kind", "result"}, // kind: http, render; result: success, failure
	)

	ProxyEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_proxy_evictions_total",
			Help: "Proxies that crossed the retry threshold.",
		},
	)

	ProxiesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_proxies_active",
			Help: "Proxies currently below the retry threshold.",
		},
	)

	ProxiesAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_proxies_added_total",
			Help: "Proxies inserted by replenishment or import.",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_notifications_total",
			Help: "Notifier deliveries by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

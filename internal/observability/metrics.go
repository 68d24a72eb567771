// README: Prometheus metrics for the dispatch protocol and the HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_broadcast_cycles_total",
		Help: "Broadcast cycles started across all orders"})
	SuggestionsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_suggestions_sent_total",
		Help: "Driver offers created"})
	OffersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_offers_accepted_total",
		Help: "Offers accepted by drivers"})
	OffersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_offers_rejected_total",
		Help: "Offers rejected by drivers"})
	OffersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_offers_expired_total",
		Help: "Offers that lapsed without a response"})
	DispatchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taybat", Name: "dispatch_exhausted_total",
		Help: "Orders that ran out of broadcast cycles without a match"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taybat", Name: "http_requests_total",
			Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taybat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

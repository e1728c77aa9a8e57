package gateway

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each gateway owns
// its own registry so that parallel instances never collide on
// registration. Label sets stay bounded: kinds, policies, and capacity
// profiles are closed enumerations, and session ids never become labels.
type Metrics struct {
	registry *prometheus.Registry

	itemsAdded     *prometheus.CounterVec
	prunes         *prometheus.CounterVec
	prunedItems    *prometheus.CounterVec
	compactions    prometheus.Counter
	compactedItems prometheus.Counter
	tokensFreed    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	usageRatio     *prometheus.HistogramVec
	wsConnections  prometheus.Gauge
}

// NewMetrics creates all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "items_added_total",
			Help:      "Context items added, by kind.",
		}, []string{"kind"}),
		prunes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "prunes_total",
			Help:      "Prune passes executed, by policy.",
		}, []string{"policy"}),
		prunedItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "pruned_items_total",
			Help:      "Context items evicted by pruning, by policy.",
		}, []string{"policy"}),
		compactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "compactions_total",
			Help:      "Compaction passes executed.",
		}),
		compactedItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "compacted_items_total",
			Help:      "Context items shrunk by compaction.",
		}),
		tokensFreed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "tokens_freed_total",
			Help:      "Estimated tokens freed, by operation.",
		}, []string{"op"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctxkeep",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route pattern and status code.",
		}, []string{"route", "code"}),
		usageRatio: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ctxkeep",
			Name:      "usage_ratio",
			Help:      "Window usage ratio observed on status reads, by capacity profile.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.65, 0.8, 0.9, 0.95, 1.0, 1.1},
		}, []string{"model"}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ctxkeep",
			Name:      "ws_connections",
			Help:      "Live chat WebSocket connections.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordItemAdded counts one added context item.
func (m *Metrics) RecordItemAdded(kind string) {
	m.itemsAdded.WithLabelValues(kind).Inc()
}

// RecordPrune records one prune pass and what it removed.
func (m *Metrics) RecordPrune(policy string, itemsRemoved, tokensFreed int) {
	m.prunes.WithLabelValues(policy).Inc()
	m.prunedItems.WithLabelValues(policy).Add(float64(itemsRemoved))
	m.tokensFreed.WithLabelValues("prune").Add(float64(tokensFreed))
}

// RecordCompaction records one compaction pass and what it saved.
func (m *Metrics) RecordCompaction(itemsCompacted, tokensFreed int) {
	m.compactions.Inc()
	m.compactedItems.Add(float64(itemsCompacted))
	m.tokensFreed.WithLabelValues("compact").Add(float64(tokensFreed))
}

// ObserveUsage records a session's usage ratio under its profile label.
func (m *Metrics) ObserveUsage(model string, ratio float64) {
	m.usageRatio.WithLabelValues(model).Observe(ratio)
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// WSConnected marks one chat socket as open.
func (m *Metrics) WSConnected() { m.wsConnections.Inc() }

// WSDisconnected marks one chat socket as closed.
func (m *Metrics) WSDisconnected() { m.wsConnections.Dec() }

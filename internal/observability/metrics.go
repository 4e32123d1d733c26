// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Escrow transfer directions.
const (
	DirectionIn     = "in"     // seller -> escrow
	DirectionRefund = "refund" // escrow -> seller
	DirectionOut    = "out"    // escrow -> buyer
)

// Metrics holds all Prometheus metrics for the bazaar.
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	EscrowTransfers *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	WSSubscribers   prometheus.Gauge
	CurrentBlock    prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "bazaar"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "total",
			Help:      "Total number of bazaar operations by name and result kind",
		}, []string{"op", "result"}),
		OperationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "duration_seconds",
			Help:      "Bazaar operation latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"op"}),
		EscrowTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "transfers_total",
			Help:      "Committed escrow transfers by direction",
		}, []string{"direction"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		WSSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "subscribers",
			Help:      "Connected websocket event subscribers",
		}),
		CurrentBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_block",
			Help:      "Block height seen by the last operation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOp records one finished operation. kind is "ok" or the error kind.
func (m *Metrics) ObserveOp(op, kind string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, kind).Inc()
	m.OperationTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// RecordEscrowTransfer counts a committed escrow transfer.
func (m *Metrics) RecordEscrowTransfer(direction string) {
	if m == nil {
		return
	}
	m.EscrowTransfers.WithLabelValues(direction).Inc()
}

// RecordHTTP counts one served request.
func (m *Metrics) RecordHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, http.StatusText(status)).Inc()
}

// SetBlock records the block height.
func (m *Metrics) SetBlock(n uint64) {
	if m == nil {
		return
	}
	m.CurrentBlock.Set(float64(n))
}

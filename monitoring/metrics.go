package monitoring

import (
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exchangeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_operations_total",
			Help: "Total exchange engine operations by outcome",
		},
		[]string{"operation", "status"},
	)

	exchangeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_operation_duration_seconds",
			Help:    "Duration of exchange engine operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	activeTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickets_active_total",
			Help: "Current number of active tickets",
		},
	)

	pendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_requests_pending_total",
			Help: "Current number of pending exchange requests",
		},
	)
)

// TrackExchangeOperation records one engine operation outcome.
func TrackExchangeOperation(operation, status string) {
	exchangeOperations.WithLabelValues(operation, status).Inc()
}

// ObserveExchangeDuration records how long an engine operation took.
func ObserveExchangeDuration(operation string, d time.Duration) {
	exchangeOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

type Monitor struct {
	app core.App
}

func NewMonitor(app core.App) *Monitor {
	return &Monitor{app: app}
}

// Collect refreshes the store-backed gauges every 30s until stop closes.
func (m *Monitor) Collect(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.collectOnce()
		}
	}
}

func (m *Monitor) collectOnce() {
	if n, err := m.app.CountRecords("tickets", dbx.HashExp{"status": "active"}); err == nil {
		activeTickets.Set(float64(n))
	}
	if n, err := m.app.CountRecords("exchange_requests", dbx.HashExp{"status": "pending"}); err == nil {
		pendingRequests.Set(float64(n))
	}
}

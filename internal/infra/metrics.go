package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the trading core's Prometheus instruments. The
// registry is injected by the caller; nothing registers globally.
type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec // result: ok|validation|network|breaker_open
	OrdersCancelled *prometheus.CounterVec // result: ok|rejected|network
	FillsApplied    prometheus.Counter
	SequenceRefresh prometheus.Counter
	BreakerState    *prometheus.GaugeVec // category: submission|cancellation|polling; 0=closed 1=open 2=half_open
	EndpointHealthy *prometheus.GaugeVec // endpoint address; 1 healthy, 0 unhealthy
	PollCycles      prometheus.Counter
	ActiveOrders    prometheus.Gauge
}

// NewMetrics builds and registers all instruments on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_placed_total",
				Help: "Order placement attempts by result",
			},
			[]string{"result"},
		),
		OrdersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_cancelled_total",
				Help: "Order cancellation attempts by result",
			},
			[]string{"result"},
		),
		FillsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_fills_applied_total",
				Help: "Fill updates applied to tracked orders",
			},
		),
		SequenceRefresh: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_sequence_refreshes_total",
				Help: "Sequence cache refreshes from the remote ledger",
			},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trader_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"category"},
		),
		EndpointHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trader_endpoint_healthy",
				Help: "Endpoint health flag (1 healthy, 0 unhealthy)",
			},
			[]string{"endpoint"},
		),
		PollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_poll_cycles_total",
				Help: "Completed status polling cycles",
			},
		),
		ActiveOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_active_orders",
				Help: "Orders currently tracked as active",
			},
		),
	}

	reg.MustRegister(
		m.OrdersPlaced,
		m.OrdersCancelled,
		m.FillsApplied,
		m.SequenceRefresh,
		m.BreakerState,
		m.EndpointHealthy,
		m.PollCycles,
		m.ActiveOrders,
	)

	return m
}

// ObserveBreaker mirrors a breaker state into the gauge.
func (m *Metrics) ObserveBreaker(category string, state State) {
	m.BreakerState.WithLabelValues(category).Set(float64(state))
}

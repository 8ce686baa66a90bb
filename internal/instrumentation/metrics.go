package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the fetch cycle. A nil
// *Metrics records nothing.
type Metrics struct {
	CycleDuration    prometheus.Histogram
	CyclesTotal      *prometheus.CounterVec
	EventsProcessed  prometheus.Counter
	RecordsCollected prometheus.Gauge
	SpotPrice        *prometheus.GaugeVec
	NetGEX           *prometheus.GaugeVec
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Whole fetch cycle, token to GEX
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gex_cycle_duration_seconds",
			Help:    "Duration of a fetch cycle in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60},
		}),

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_cycles_total",
			Help: "Total number of fetch cycles by outcome",
		}, []string{"outcome"}),

		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gex_feed_events_processed_total",
			Help: "Total number of feed events merged into option records",
		}),

		RecordsCollected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gex_records_collected",
			Help: "Option symbols with at least one event in the last cycle",
		}),

		SpotPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gex_spot_price",
			Help: "Spot price used by the last successful cycle",
		}, []string{"underlying", "source"}),

		NetGEX: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gex_net_gamma_exposure",
			Help: "Net dollar gamma exposure per 1% move from the last successful cycle",
		}, []string{"underlying"}),

		// Errors by component and type
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_errors_total",
			Help: "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}
}

// RecordCycle records the duration and outcome of one fetch cycle.
func (m *Metrics) RecordCycle(seconds float64, outcome string) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordEvents adds merged feed events.
func (m *Metrics) RecordEvents(n int) {
	if m == nil {
		return
	}
	m.EventsProcessed.Add(float64(n))
}

// RecordRecords sets the number of symbols collected in the last cycle.
func (m *Metrics) RecordRecords(n int) {
	if m == nil {
		return
	}
	m.RecordsCollected.Set(float64(n))
}

// RecordSnapshot publishes the headline numbers of a successful cycle.
func (m *Metrics) RecordSnapshot(underlying, spotSource string, spot, netGEX float64) {
	if m == nil {
		return
	}
	m.SpotPrice.DeletePartialMatch(prometheus.Labels{"underlying": underlying})
	m.SpotPrice.WithLabelValues(underlying, spotSource).Set(spot)
	m.NetGEX.WithLabelValues(underlying).Set(netGEX)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

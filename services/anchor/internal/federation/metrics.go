package federation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the federation collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchDuration   *prometheus.HistogramVec
	sourceRows      *prometheus.CounterVec
	truncated       *prometheus.CounterVec
}

// NewMetrics registers the federation collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federation_requests_total",
				Help: "Total number of federated queries",
			},
			[]string{"mode", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federation_request_duration_seconds",
				Help:    "End-to-end federated query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federation_source_fetch_duration_seconds",
				Help:    "Per-source fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"driver"},
		),
		sourceRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federation_source_rows_total",
				Help: "Rows fetched from federated sources",
			},
			[]string{"driver"},
		),
		truncated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federation_truncated_sources_total",
				Help: "Source fetches that hit their row cap",
			},
			[]string{"driver"},
		),
	}
}

func (m *Metrics) observeRequest(mode string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(KindOf(err))
	}
	m.requests.WithLabelValues(mode, status).Inc()
	m.requestDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) observeFetch(driver string, rows int, elapsed time.Duration, capped bool) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(driver).Observe(elapsed.Seconds())
	m.sourceRows.WithLabelValues(driver).Add(float64(rows))
	if capped {
		m.truncated.WithLabelValues(driver).Inc()
	}
}

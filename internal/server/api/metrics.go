package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records request outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesTotal      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resvault_requests_total",
				Help: "Requests by endpoint, method, wire status and internal outcome",
			},
			[]string{"endpoint", "method", "status", "outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "resvault_request_duration_milliseconds",
				Help: "Request duration in milliseconds",
				Buckets: []float64{
					1,     // cached lookups
					10,    // local storage
					50,    // remote storage round trip
					250,   // small transfers
					1000,  // 1s
					10000, // throttled transfers
					60000, // 1m
				},
			},
			[]string{"endpoint", "method"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resvault_transferred_bytes_total",
				Help: "Body bytes received and sent",
			},
			[]string{"endpoint", "direction"},
		),
	}
}

// Observe records one finished request.
func (m *Metrics) Observe(endpoint, method string, status int, succeeded bool, in, out int64, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.requestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status), outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint, method).Observe(float64(d.Milliseconds()))
	if in > 0 {
		m.bytesTotal.WithLabelValues(endpoint, "in").Add(float64(in))
	}
	if out > 0 {
		m.bytesTotal.WithLabelValues(endpoint, "out").Add(float64(out))
	}
}

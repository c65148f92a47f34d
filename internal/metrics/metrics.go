// Package metrics exports SIFEN exchange metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sirosfoundation/go-sifen/pkg/sifen"
)

const namespace = "sifen"

// Observer implements sifen.Observer and records request outcomes,
// exchange latency and payload sizes
type Observer struct {
	requestsTotal    *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	bytesTotal       *prometheus.CounterVec
	resultCodes      *prometheus.CounterVec
}

// NewObserver creates the collectors and registers them with reg
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Total SIFEN requests by operation and terminal state.",
			},
			[]string{"operation", "state"},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "exchange_duration_seconds",
				Help:      "Duration of the HTTPS exchange in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation", "route"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "bytes_total",
				Help:      "Envelope bytes sent and received.",
			},
			[]string{"operation", "direction"},
		),
		resultCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "result_codes_total",
				Help:      "Result codes reported by the authority.",
			},
			[]string{"operation", "code"},
		),
	}

	for _, c := range []prometheus.Collector{o.requestsTotal, o.exchangeDuration, o.bytesTotal, o.resultCodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Observe implements sifen.Observer
func (o *Observer) Observe(e sifen.Event) {
	op := string(e.Operation)
	switch e.Type {
	case sifen.EventRequestBuilt:
		o.bytesTotal.WithLabelValues(op, "sent").Add(float64(e.Bytes))
	case sifen.EventResponseReceived:
		o.bytesTotal.WithLabelValues(op, "received").Add(float64(e.Bytes))
		o.exchangeDuration.WithLabelValues(op, e.Route).Observe(e.Elapsed.Seconds())
	case sifen.EventParseResult:
		o.requestsTotal.WithLabelValues(op, e.State.String()).Inc()
		if e.Code != "" {
			o.resultCodes.WithLabelValues(op, e.Code).Inc()
		}
	case sifen.EventRequestFailed:
		o.requestsTotal.WithLabelValues(op, e.State.String()).Inc()
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

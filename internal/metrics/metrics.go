// Package metrics counts reconciliation outcomes. A nil *Metrics records
// nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OpOrder   = "order"
	OpPayment = "payment"
)

type Metrics struct {
	registry      *prometheus.Registry
	outcomes      *prometheus.CounterVec
	verifications *prometheus.CounterVec
	narrowings    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozopos",
			Name:      "reconcile_outcomes_total",
			Help:      "Reconciliation outcomes by operation and error kind.",
		}, []string{"op", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mozopos",
			Name:      "verifications_total",
			Help:      "Verification lookups after an ambiguous failure.",
		}, []string{"op", "found"}),
		narrowings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mozopos",
			Name:      "payment_narrowings_total",
			Help:      "Voucher submissions retried with a narrowed order set.",
		}),
	}
	m.registry.MustRegister(m.outcomes, m.verifications, m.narrowings)
	return m
}

// Outcome records a finished operation; outcome is "ok" or an error kind.
func (m *Metrics) Outcome(op, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Verification(op string, found bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.verifications.WithLabelValues(op, label).Inc()
}

func (m *Metrics) Narrowed() {
	if m == nil {
		return
	}
	m.narrowings.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

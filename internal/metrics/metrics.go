// Package metrics collects and exposes Prometheus metrics for the auth
// surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcome labels.
const (
	VerifyOK      = "ok"
	VerifyMissing = "missing"
	VerifyExpired = "expired"
	VerifyInvalid = "invalid"
)

// Collector counts auth outcomes. A nil *Collector is valid and records
// nothing, so metrics stay optional in tests.
type Collector struct {
	registry      *prometheus.Registry
	verifyTotal   *prometheus.CounterVec
	exchangeTotal *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triplog_auth_verify_total",
			Help: "Bearer token verifications by outcome",
		}, []string{"result"}),
		exchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triplog_auth_exchange_total",
			Help: "Social-login exchanges by outcome",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(c.verifyTotal, c.exchangeTotal)
	return c
}

func (c *Collector) RecordVerify(result string) {
	if c == nil {
		return
	}
	c.verifyTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RecordExchange(outcome string) {
	if c == nil {
		return
	}
	c.exchangeTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the /metrics endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

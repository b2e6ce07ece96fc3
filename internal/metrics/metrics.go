package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome labels.
const (
	LoginSuccess            = "success"
	LoginMissingCredentials = "missing_credentials"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// Metrics holds the auth counters on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	logins          *prometheus.CounterVec
	authentications *prometheus.CounterVec
	branchDecisions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolhub",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolhub",
			Subsystem: "auth",
			Name:      "request_authentications_total",
			Help:      "Request authentication results on protected routes.",
		}, []string{"result"}),
		branchDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolhub",
			Subsystem: "auth",
			Name:      "branch_decisions_total",
			Help:      "Branch access decisions by rule and result.",
		}, []string{"rule", "allowed"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.authentications,
		m.branchDecisions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveAuthentication records "ok", "unauthenticated" or "error".
func (m *Metrics) ObserveAuthentication(result string) {
	m.authentications.WithLabelValues(result).Inc()
}

// ObserveBranchDecision matches the observer signature of auth.NewAuthorizer.
func (m *Metrics) ObserveBranchDecision(rule string, allowed bool) {
	label := "false"
	if allowed {
		label = "true"
	}
	m.branchDecisions.WithLabelValues(rule, label).Inc()
}

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each gateway gets its
// own registry so tests can construct gateways independently.
type Metrics struct {
	Admissions *prometheus.CounterVec
	Requests   *prometheus.CounterVec
	ToolCalls  *prometheus.CounterVec
	BodyErrors *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers the gateway collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_admissions_total",
			Help: "Admission decisions on MCP endpoints, by outcome.",
		}, []string{"outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "JSON-RPC requests received, by method.",
		}, []string{"method"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_tool_calls_total",
			Help: "Tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		BodyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_body_errors_total",
			Help: "Rejected request bodies, by failure code.",
		}, []string{"code"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_pattern_cache_hits_total",
			Help: "Pattern cache hits on upstream GETs.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_pattern_cache_misses_total",
			Help: "Pattern cache misses on upstream GETs.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.Admissions, m.Requests, m.ToolCalls, m.BodyErrors, m.CacheHits, m.CacheMisses)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// knownMethods bounds the request counter's label space; anything a
// client invents is bucketed as "other".
var knownMethods = map[string]bool{
	"initialize":                true,
	"tools/list":                true,
	"tools/call":                true,
	"ping":                      true,
	"notifications/initialized": true,
	"notifications/cancelled":   true,
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

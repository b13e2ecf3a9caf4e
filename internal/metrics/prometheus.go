package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	requestTotal    *prom.CounterVec
	requestSeconds  *prom.HistogramVec
	externalTotal   *prom.CounterVec
	externalSeconds *prom.HistogramVec
	cacheLookups    *prom.CounterVec
}

func (p *promRecorder) IncRequestTotal(agent, task, outcome string) {
	p.requestTotal.WithLabelValues(agent, task, outcome).Inc()
}

func (p *promRecorder) ObserveRequestSeconds(agent, task, outcome string, seconds float64) {
	p.requestSeconds.WithLabelValues(agent, task, outcome).Observe(seconds)
}

func (p *promRecorder) IncExternalTotal(service string, success bool) {
	p.externalTotal.WithLabelValues(service, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveExternalSeconds(service string, success bool, seconds float64) {
	p.externalSeconds.WithLabelValues(service, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(cache, result).Inc()
}

// EnablePrometheus installs a Prometheus recorder backed by a fresh registry
// and returns the handler that serves it.
func EnablePrometheus() http.Handler {
	registry := prom.NewRegistry()
	p := &promRecorder{
		requestTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "bioagents_requests_total",
			Help: "Total number of agent requests",
		}, []string{"agent", "task", "outcome"}),
		requestSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "bioagents_request_seconds",
			Help:    "Agent request duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"agent", "task", "outcome"}),
		externalTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "bioagents_external_calls_total",
			Help: "Total number of external service calls",
		}, []string{"service", "success"}),
		externalSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "bioagents_external_call_seconds",
			Help:    "External service call duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"service", "success"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Name: "bioagents_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
	}

	registry.MustRegister(p.requestTotal, p.requestSeconds, p.externalTotal, p.externalSeconds, p.cacheLookups)
	SetRecorder(p)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

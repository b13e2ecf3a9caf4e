// Package metrics provides a minimal instrumentation interface with a no-op
// default and an optional Prometheus-backed implementation.
package metrics

import (
	"sync"
	"time"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncRequestTotal(agent, task, outcome string)
	ObserveRequestSeconds(agent, task, outcome string, seconds float64)
	IncExternalTotal(service string, success bool)
	ObserveExternalSeconds(service string, success bool, seconds float64)
	IncCacheLookup(cache string, hit bool)
}

// noopRecorder implements Recorder with no-ops.
type noopRecorder struct{}

func (n *noopRecorder) IncRequestTotal(string, string, string)                {}
func (n *noopRecorder) ObserveRequestSeconds(string, string, string, float64) {}
func (n *noopRecorder) IncExternalTotal(string, bool)                         {}
func (n *noopRecorder) ObserveExternalSeconds(string, bool, float64)          {}
func (n *noopRecorder) IncCacheLookup(string, bool)                           {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	recorder = r
}

// TimeRequest times an agent request. The returned func takes the outcome
// (e.g. "success", "failure", "error").
func TimeRequest(agent, task string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		dur := time.Since(start).Seconds()
		Default().IncRequestTotal(agent, task, outcome)
		Default().ObserveRequestSeconds(agent, task, outcome, dur)
	}
}

// TimeExternal times a call to an external service.
func TimeExternal(service string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncExternalTotal(service, success)
		Default().ObserveExternalSeconds(service, success, dur)
	}
}

// CacheLookup records a cache hit or miss.
func CacheLookup(cache string, hit bool) {
	Default().IncCacheLookup(cache, hit)
}

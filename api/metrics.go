package api

import (
	"sync"

	metrics "github.com/hashicorp/go-metrics"
)

const (
	metricRefreshExchanges = "refresh_exchanges"
	metricRefreshFailures  = "refresh_failures"
	metricReplays          = "replays"
	metricWaiters          = "waiters"
	metricWaiterTimeouts   = "waiter_timeouts"
	metricEscalations      = "escalations"
)

// pipelineMetrics mirrors the counters emitted to go-metrics so callers
// can inspect them without configuring a sink.
type pipelineMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newPipelineMetrics() *pipelineMetrics {
	return &pipelineMetrics{
		counters: map[string]int64{
			metricRefreshExchanges: 0,
			metricRefreshFailures:  0,
			metricReplays:          0,
			metricWaiters:          0,
			metricWaiterTimeouts:   0,
			metricEscalations:      0,
		},
	}
}

func (m *pipelineMetrics) incr(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()

	metrics.IncrCounter([]string{"sessionpipe", name}, 1)
}

func (m *pipelineMetrics) snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

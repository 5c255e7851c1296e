package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects counters for relay pipelines.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	repliesSent   atomic.Int64

	pipelines map[string]*PipelineMetrics
}

// PipelineMetrics holds counters for one pipeline.
type PipelineMetrics struct {
	executionCount atomic.Int64
	totalDuration  atomic.Int64 // milliseconds
	errorCount     atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		pipelines: make(map[string]*PipelineMetrics),
	}
}

// RecordRequest records a handled unit.
func (m *Metrics) RecordRequest(pipeline string) {
	m.requestTotal.Add(1)
	m.pipeline(pipeline).executionCount.Add(1)
}

// RecordFailure records a unit whose reply carried a failure.
func (m *Metrics) RecordFailure(pipeline string) {
	m.requestFailed.Add(1)
	m.pipeline(pipeline).errorCount.Add(1)
}

// RecordDuration records the time spent on one unit.
func (m *Metrics) RecordDuration(pipeline string, d time.Duration) {
	m.pipeline(pipeline).totalDuration.Add(d.Milliseconds())
}

// RecordReply records one outbound message.
func (m *Metrics) RecordReply() {
	m.repliesSent.Add(1)
}

func (m *Metrics) pipeline(name string) *PipelineMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm, ok := m.pipelines[name]
	if !ok {
		pm = &PipelineMetrics{}
		m.pipelines[name] = pm
	}
	return pm
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.pipelines))
	for name := range m.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)

	pipelines := make(map[string]*PipelineMetricsSnapshot, len(names))
	for _, name := range names {
		pm := m.pipelines[name]
		count := pm.executionCount.Load()
		total := pm.totalDuration.Load()
		var avg int64
		if count > 0 {
			avg = total / count
		}
		pipelines[name] = &PipelineMetricsSnapshot{
			ExecutionCount:  count,
			TotalDuration:   total,
			ErrorCount:      pm.errorCount.Load(),
			AverageDuration: avg,
		}
	}

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		RepliesSent:   m.repliesSent.Load(),
		Pipelines:     pipelines,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                               `json:"request_total"`
	RequestFailed int64                               `json:"request_failed"`
	RepliesSent   int64                               `json:"replies_sent"`
	Pipelines     map[string]*PipelineMetricsSnapshot `json:"pipelines"`
}

// PipelineMetricsSnapshot represents metrics for one pipeline.
type PipelineMetricsSnapshot struct {
	ExecutionCount  int64 `json:"execution_count"`
	TotalDuration   int64 `json:"total_duration_ms"`
	ErrorCount      int64 `json:"error_count"`
	AverageDuration int64 `json:"average_duration_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}

package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("archive")
	m.RecordRequest("archive")
	m.RecordRequest("conversation")
	m.RecordFailure("conversation")
	m.RecordDuration("archive", 100*time.Millisecond)
	m.RecordDuration("archive", 300*time.Millisecond)
	m.RecordReply()

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.RequestTotal)
	assert.Equal(t, int64(1), s.RequestFailed)
	assert.Equal(t, int64(1), s.RepliesSent)

	require.Contains(t, s.Pipelines, "archive")
	assert.Equal(t, int64(2), s.Pipelines["archive"].ExecutionCount)
	assert.Equal(t, int64(400), s.Pipelines["archive"].TotalDuration)
	assert.Equal(t, int64(200), s.Pipelines["archive"].AverageDuration)
	assert.Equal(t, int64(1), s.Pipelines["conversation"].ErrorCount)
	assert.InDelta(t, 66.66, s.SuccessRate(), 0.1)
}

func TestMetricsEmptySuccessRate(t *testing.T) {
	assert.Equal(t, 100.0, NewMetrics().Snapshot().SuccessRate())
}

func TestMetricsConcurrentRecording(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest("voice")
			m.RecordDuration("voice", time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().Pipelines["voice"].ExecutionCount)
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avollmer/sitegraft/internal/pipeline"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpHTTPRequest, 10*time.Millisecond)
	c.RecordTiming(OpHTTPRequest, 30*time.Millisecond)

	snap := c.Snapshot()
	op, ok := snap.Operations[OpHTTPRequest]
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(40), op.TotalTimeMs)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.01)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Operations)
	assert.Empty(t, snap.Phases)
	assert.Zero(t, snap.JobsStarted)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestObserverDerivesPhaseDurations(t *testing.T) {
	c := NewCollector()
	o := NewObserver(c)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.Emit(pipeline.Event{Type: pipeline.EventStarted, JobID: "j1", Timestamp: start})
	o.Emit(pipeline.Event{
		Type: pipeline.EventProgress, JobID: "j1",
		Phase: pipeline.PhaseBuild, Status: pipeline.StatusActive, Timestamp: start,
	})
	o.Emit(pipeline.Event{
		Type: pipeline.EventProgress, JobID: "j1",
		Phase: pipeline.PhaseBuild, Status: pipeline.StatusDone, Timestamp: start.Add(2 * time.Second),
	})
	o.Emit(pipeline.Event{Type: pipeline.EventComplete, JobID: "j1", Timestamp: start.Add(3 * time.Second)})

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.JobsStarted)
	assert.Equal(t, int64(1), snap.JobsFinished)

	build, ok := snap.Phases[pipeline.PhaseBuild]
	require.True(t, ok)
	assert.Equal(t, int64(1), build.Count)
	assert.Equal(t, int64(2000), build.TotalTimeMs)
}

func TestObserverIgnoresUnmatchedCompletion(t *testing.T) {
	c := NewCollector()
	o := NewObserver(c)

	// done without a preceding active event: nothing to measure
	o.Emit(pipeline.Event{
		Type: pipeline.EventProgress, JobID: "j2",
		Phase: pipeline.PhaseTest, Status: pipeline.StatusDone, Timestamp: time.Now(),
	})

	assert.Empty(t, c.Snapshot().Phases)
}

func TestObserverDropsAbandonedPhases(t *testing.T) {
	c := NewCollector()
	o := NewObserver(c)

	now := time.Now()
	o.Emit(pipeline.Event{
		Type: pipeline.EventProgress, JobID: "j3",
		Phase: pipeline.PhaseBuild, Status: pipeline.StatusActive, Timestamp: now,
	})
	o.Emit(pipeline.Event{Type: pipeline.EventError, JobID: "j3", Timestamp: now})

	// a later done for the same phase has nothing to pair with
	o.Emit(pipeline.Event{
		Type: pipeline.EventProgress, JobID: "j3",
		Phase: pipeline.PhaseBuild, Status: pipeline.StatusDone, Timestamp: now.Add(time.Second),
	})

	assert.Empty(t, c.Snapshot().Phases)
	assert.Equal(t, int64(1), c.Snapshot().JobsFinished)
}

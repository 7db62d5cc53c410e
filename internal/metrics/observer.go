package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/avollmer/sitegraft/internal/pipeline"
)

// Observer derives phase timings and job counts from the progress event
// stream. It sits next to the WebSocket hub on the emitter fan-out, so the
// engine itself stays metrics-free.
type Observer struct {
	collector *Collector

	mu     sync.Mutex
	active map[string]time.Time // jobID/phase -> activation time
}

// NewObserver creates an observer feeding the given collector.
func NewObserver(collector *Collector) *Observer {
	return &Observer{
		collector: collector,
		active:    make(map[string]time.Time),
	}
}

// Emit implements pipeline.Emitter. Never blocks.
func (o *Observer) Emit(event pipeline.Event) {
	switch event.Type {
	case pipeline.EventStarted:
		o.collector.JobStarted()

	case pipeline.EventProgress:
		o.observePhase(event)

	case pipeline.EventComplete, pipeline.EventError:
		o.collector.JobFinished()
		o.dropJob(event.JobID)
	}
}

func (o *Observer) observePhase(event pipeline.Event) {
	key := event.JobID + "/" + event.Phase

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Status {
	case pipeline.StatusActive:
		o.active[key] = event.Timestamp

	case pipeline.StatusDone, pipeline.StatusFailed:
		started, ok := o.active[key]
		if !ok {
			return
		}
		delete(o.active, key)
		o.collector.RecordPhase(event.Phase, event.Timestamp.Sub(started))
	}
}

// dropJob forgets activation times for phases that never completed, e.g.
// when a job dies mid-phase.
func (o *Observer) dropJob(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key := range o.active {
		if strings.HasPrefix(key, jobID+"/") {
			delete(o.active, key)
		}
	}
}

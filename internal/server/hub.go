package server

import (
	"log/slog"
	"sync"

	"github.com/avollmer/sitegraft/internal/pipeline"
)

// backlogSize is how many events per job are kept for replay to clients
// that connect mid-run.
const backlogSize = 300

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// cannot keep up is dropped rather than blocking the pipeline.
const subscriberBuffer = 64

// Hub fans pipeline progress events out to WebSocket subscribers, keeping a
// capped per-job backlog for replay on connect.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*jobStream
	logger  *slog.Logger
}

type jobStream struct {
	mu          sync.Mutex
	backlog     []pipeline.Event
	subscribers map[chan pipeline.Event]bool
}

// NewHub creates an event hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		streams: make(map[string]*jobStream),
		logger:  logger,
	}
}

// Emit implements pipeline.Emitter. It never blocks the pipeline.
func (h *Hub) Emit(event pipeline.Event) {
	stream := h.stream(event.JobID)

	stream.mu.Lock()
	defer stream.mu.Unlock()

	stream.backlog = append(stream.backlog, event)
	if len(stream.backlog) > backlogSize {
		stream.backlog = stream.backlog[len(stream.backlog)-backlogSize:]
	}

	for ch := range stream.subscribers {
		select {
		case ch <- event:
		default:
			// slow consumer, drop it
			delete(stream.subscribers, ch)
			close(ch)
			h.logger.Warn("dropped slow event subscriber", "job_id", event.JobID)
		}
	}
}

// Subscribe returns the replayable backlog, a live event channel, and an
// unsubscribe function.
func (h *Hub) Subscribe(jobID string) ([]pipeline.Event, <-chan pipeline.Event, func()) {
	stream := h.stream(jobID)

	stream.mu.Lock()
	defer stream.mu.Unlock()

	backlog := make([]pipeline.Event, len(stream.backlog))
	copy(backlog, stream.backlog)

	ch := make(chan pipeline.Event, subscriberBuffer)
	stream.subscribers[ch] = true

	unsubscribe := func() {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		if stream.subscribers[ch] {
			delete(stream.subscribers, ch)
			close(ch)
		}
	}
	return backlog, ch, unsubscribe
}

// Backlog returns a copy of the replay buffer for a job.
func (h *Hub) Backlog(jobID string) []pipeline.Event {
	stream := h.stream(jobID)
	stream.mu.Lock()
	defer stream.mu.Unlock()
	out := make([]pipeline.Event, len(stream.backlog))
	copy(out, stream.backlog)
	return out
}

func (h *Hub) stream(jobID string) *jobStream {
	h.mu.RLock()
	stream, ok := h.streams[jobID]
	h.mu.RUnlock()
	if ok {
		return stream
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if stream, ok = h.streams[jobID]; ok {
		return stream
	}
	stream = &jobStream{subscribers: make(map[chan pipeline.Event]bool)}
	h.streams[jobID] = stream
	return stream
}

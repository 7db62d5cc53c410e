package pipeline

import "time"

// Event types emitted over the progress stream.
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventLog      = "log"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one progress notification. An event is emitted after every phase
// transition; consumers (WebSocket hub, CLI progress UI) only read them.
type Event struct {
	Type      string      `json:"type"`
	JobID     string      `json:"job_id"`
	Phase     string      `json:"phase,omitempty"`
	Status    PhaseStatus `json:"status,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	Message   string      `json:"message,omitempty"`
	Percent   int         `json:"percent"`
	Timestamp time.Time   `json:"timestamp"`
}

// Emitter receives progress events. Emit must not block the pipeline.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event Event)

// Emit calls f(event).
func (f EmitterFunc) Emit(event Event) { f(event) }

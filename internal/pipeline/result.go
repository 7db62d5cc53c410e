package pipeline

import (
	"context"

	"github.com/avollmer/sitegraft/internal/store"
)

type resultKind int

const (
	kindOk resultKind = iota
	kindDegraded
	kindFailed
)

// Result is the tagged outcome of one phase handler. The engine branches on
// the variant instead of catching broad error classes: Ok advances, Degraded
// advances with a recorded warning, Failed is isolated and the pipeline
// continues with the next phase.
type Result struct {
	kind    resultKind
	data    map[string]any
	warning string
	err     error
}

// Ok is a successful phase outcome carrying the handler's result data.
func Ok(data map[string]any) Result {
	return Result{kind: kindOk, data: data}
}

// Degraded is a completed-with-caveats outcome. The phase counts as
// completed and a warning is recorded on the report.
func Degraded(data map[string]any, warning string) Result {
	return Result{kind: kindDegraded, data: data, warning: warning}
}

// Failed is an isolated phase failure. The engine records it and moves on.
func Failed(err error) Result {
	return Result{kind: kindFailed, err: err}
}

// Completed reports whether the phase counts as completed (Ok or Degraded).
func (r Result) Completed() bool { return r.kind != kindFailed }

// Warning returns the recorded warning for Degraded results, "" otherwise.
func (r Result) Warning() string { return r.warning }

// Err returns the failure cause for Failed results, nil otherwise.
func (r Result) Err() error { return r.err }

// Data returns the handler's result data, never nil.
func (r Result) Data() map[string]any {
	if r.data == nil {
		return map[string]any{}
	}
	return r.data
}

// PhaseContext is what a phase handler sees: the job identity, the shared
// state store, and the results of every phase that ran before it.
type PhaseContext struct {
	JobID   string
	Source  string
	Mode    string
	State   store.Store
	Results map[string]map[string]any
}

// Handler executes one phase. Handlers run strictly sequentially within a
// job; heavy work inside a handler may fan out internally but that is not
// visible to the engine's sequencing.
type Handler func(ctx context.Context, pc *PhaseContext) Result

// Handlers binds phase names to their handlers. Phases without a handler
// complete as Degraded with an empty result.
type Handlers map[string]Handler

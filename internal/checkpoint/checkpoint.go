// Package checkpoint records phase completion per migration source so an
// interrupted job can resume without redoing expensive work.
package checkpoint

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/avollmer/sitegraft/internal/store"
)

// resumePhase is the minimum viable resume point. Phases before it are
// cheap to redo, so resume is only offered once analysis has completed.
const resumePhase = "analysis"

// Checkpoint is the persisted record that a phase completed. The source URL
// is stored verbatim inside the record because the storage key derivation is
// lossy and cannot be reversed reliably.
type Checkpoint struct {
	SourceURL string         `json:"source_url"`
	Phase     string         `json:"phase"`
	Timestamp string         `json:"timestamp"` // ISO-8601
	Data      map[string]any `json:"data"`
	Completed bool           `json:"completed"`
}

// Progress is a derived view of how far a migration has gotten.
type Progress struct {
	CanResume          bool     `json:"can_resume"`
	LastCompletedPhase string   `json:"last_completed_phase,omitempty"`
	NextPhase          string   `json:"next_phase,omitempty"`
	CompletedPhases    []string `json:"completed_phases"`
	PendingPhases      []string `json:"pending_phases"`
	Percentage         int      `json:"percentage"`
}

// Store persists checkpoints in the shared state store. The canonical phase
// order is injected so this package stays independent of the engine.
type Store struct {
	state  store.Store
	phases []string
	logger *slog.Logger
}

// NewStore creates a checkpoint store over the shared state store.
func NewStore(state store.Store, phases []string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{state: state, phases: phases, logger: logger}
}

// Create writes a completion checkpoint for (source, phase). Returns false
// on storage failure; the failure is logged and must not abort the caller.
func (s *Store) Create(ctx context.Context, source, phase string, data map[string]any) bool {
	cp := Checkpoint{
		SourceURL: source,
		Phase:     phase,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Completed: true,
	}

	if err := s.state.Set(ctx, keyFor(source, phase), cp, 0); err != nil {
		s.logger.Error("failed to create checkpoint", "source", source, "phase", phase, "error", err)
		return false
	}

	s.logger.Info("checkpoint created", "source", source, "phase", phase)
	return true
}

// Get retrieves the checkpoint for (source, phase), or nil when absent.
func (s *Store) Get(ctx context.Context, source, phase string) *Checkpoint {
	cp, ok := store.GetJSON[Checkpoint](ctx, s.state, keyFor(source, phase))
	if !ok {
		return nil
	}
	return &cp
}

// LastCompletedPhase scans the phase order from the end and returns the
// latest phase with a completed checkpoint. ok is false when none exists.
func (s *Store) LastCompletedPhase(ctx context.Context, source string) (string, bool) {
	for i := len(s.phases) - 1; i >= 0; i-- {
		if cp := s.Get(ctx, source, s.phases[i]); cp != nil && cp.Completed {
			return s.phases[i], true
		}
	}
	return "", false
}

// NextPhase returns the phase a resumed migration should run next: the first
// phase when nothing completed, the phase after the last completed one
// otherwise. ok is false when the final phase already completed.
func (s *Store) NextPhase(ctx context.Context, source string) (string, bool) {
	last, found := s.LastCompletedPhase(ctx, source)
	if !found {
		return s.phases[0], true
	}

	for i, phase := range s.phases {
		if phase == last {
			if i < len(s.phases)-1 {
				return s.phases[i+1], true
			}
			return "", false // migration complete
		}
	}
	// Unknown phase name in store; start over.
	return s.phases[0], true
}

// CanResume reports whether a resumable checkpoint exists for source.
func (s *Store) CanResume(ctx context.Context, source string) bool {
	return s.Get(ctx, source, resumePhase) != nil
}

// GetProgress returns the derived progress view for source.
func (s *Store) GetProgress(ctx context.Context, source string) Progress {
	p := Progress{
		CanResume:       s.CanResume(ctx, source),
		CompletedPhases: []string{},
		PendingPhases:   append([]string{}, s.phases...),
	}

	if next, ok := s.NextPhase(ctx, source); ok {
		p.NextPhase = next
	}

	last, found := s.LastCompletedPhase(ctx, source)
	if found {
		p.LastCompletedPhase = last
		for i, phase := range s.phases {
			if phase == last {
				p.CompletedPhases = s.phases[:i+1]
				p.PendingPhases = s.phases[i+1:]
				break
			}
		}
	}

	if len(p.CompletedPhases) > 0 {
		p.Percentage = len(p.CompletedPhases) * 100 / len(s.phases)
	}
	return p
}

// Cleanup deletes all phase checkpoints for source after a successful
// publish. Best-effort: individual delete failures are logged and ignored.
func (s *Store) Cleanup(ctx context.Context, source string) {
	for _, phase := range s.phases {
		if err := s.state.Delete(ctx, keyFor(source, phase)); err != nil {
			s.logger.Warn("failed to delete checkpoint", "source", source, "phase", phase, "error", err)
		}
	}
	s.logger.Info("checkpoints cleaned up", "source", source)
}

// List returns checkpoint metadata for every stored checkpoint. The source
// is read from the record body, not reverse-derived from the key.
func (s *Store) List(ctx context.Context) []Checkpoint {
	keys, err := s.state.ListKeys(ctx, "checkpoint/")
	if err != nil {
		s.logger.Warn("failed to list checkpoints", "error", err)
		return nil
	}

	checkpoints := make([]Checkpoint, 0, len(keys))
	for _, key := range keys {
		if cp, ok := store.GetJSON[Checkpoint](ctx, s.state, key); ok {
			checkpoints = append(checkpoints, cp)
		}
	}
	return checkpoints
}

// keyFor derives a stable storage key from (source, phase). The derivation
// is lossy (distinct sources could collide after substitution), which is why
// the record itself carries the original source string.
func keyFor(source, phase string) string {
	normalized := strings.NewReplacer("://", "_", "/", "_", ".", "_", ":", "_").Replace(source)
	return "checkpoint/" + normalized + "/" + phase
}

// Package pipeline runs the fixed ordered migration phases, isolating
// failures so one broken phase does not abort the whole job.
package pipeline

// Canonical phase names, in execution order.
const (
	PhaseProbe    = "probe"
	PhaseAnalysis = "analysis"
	PhaseTraining = "training"
	PhaseMapping  = "mapping"
	PhaseBuild    = "build"
	PhaseTheme    = "theme"
	PhaseContent  = "content"
	PhaseTest     = "test"
	PhaseQA       = "qa"
	PhaseReview   = "review"
	PhasePublish  = "publish"
)

// Phases is the canonical ordered phase list. Checkpoint resume logic and
// progress percentages are both derived from it.
var Phases = []string{
	PhaseProbe,
	PhaseAnalysis,
	PhaseTraining,
	PhaseMapping,
	PhaseBuild,
	PhaseTheme,
	PhaseContent,
	PhaseTest,
	PhaseQA,
	PhaseReview,
	PhasePublish,
}

// PhaseStatus is the lifecycle state of one phase within a job.
type PhaseStatus string

const (
	StatusPending PhaseStatus = "pending"
	StatusActive  PhaseStatus = "active"
	StatusDone    PhaseStatus = "done"
	StatusFailed  PhaseStatus = "failed"
)

// Phase is one entry of a job's build plan.
type Phase struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Status PhaseStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

func newPhasePlan() []Phase {
	plan := make([]Phase, len(Phases))
	for i, name := range Phases {
		plan[i] = Phase{ID: i + 1, Name: name, Status: StatusPending}
	}
	return plan
}

func phaseIndex(name string) int {
	for i, p := range Phases {
		if p == name {
			return i
		}
	}
	return -1
}

package model

import "time"

// History represents a single tubegrade run.
type History struct {
	// Unique ID for this run (random UUID)
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Submission directory that was graded
	WorkDir string `json:"workdir"`
	// Exit code of the run
	ExitCode int `json:"exit_code"`
	// Duration of the run
	Duration time.Duration `json:"duration"`
	// Git information, when the submission is a repository
	Git *Git `json:"git,omitempty"`
	// Modes the run was started with
	Modes Modes `json:"modes"`
	// Grade is nil when the rubric could not be applied
	Grade *Grade `json:"grade,omitempty"`
	// Outcomes in evaluation order
	Outcomes []Outcome `json:"outcomes"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Git contains git repository information
type Git struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
	Repo   string `json:"repo,omitempty"`
}

// Modes records how the suite was evaluated.
type Modes struct {
	IR       bool `json:"ir,omitempty"`
	Final    bool `json:"final,omitempty"`
	Optimize bool `json:"optimize,omitempty"`
	Extra    bool `json:"extra,omitempty"`
}

// Grade is the rubric result.
type Grade struct {
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
}

// Outcome is the recorded verdict of one named check.
type Outcome struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason"`
	// Cycle counts, present for budgeted tests
	ReferenceCycles  int `json:"reference_cycles,omitempty"`
	SubmissionCycles int `json:"submission_cycles,omitempty"`
	BudgetCycles     int `json:"budget_cycles,omitempty"`
}

// Passed reports whether the outcome was a pass.
func (o Outcome) Passed() bool {
	return o.Status == "pass"
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeCycleProfile ArtifactType = iota
	ArtifactTypeEvidence
	ArtifactTypeMetrics
	ArtifactTypeExecutable
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeCycleProfile:
		return "profile"
	case ArtifactTypeEvidence:
		return "evidence"
	case ArtifactTypeMetrics:
		return "metrics"
	case ArtifactTypeExecutable:
		return "binary"
	default:
		return "unknown"
	}
}

// Artifact represents a file generated during a run
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}

// Find returns the first artifact of type t.
func (h History) Find(t ArtifactType) (Artifact, bool) {
	for _, a := range h.Artifacts {
		if a.Type == t {
			return a, true
		}
	}
	return Artifact{}, false
}

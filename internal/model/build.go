package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Build status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stage status constants. A stage is never pending: it is appended to a build
// in the running state.
const (
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// Pipeline stage names, in execution order.
const (
	StageStaticAnalysis = "Static Analysis"
	StageUnitTesting    = "Unit Testing"
	StageBuild          = "Build"
	StageDeployment     = "Deployment"
)

// StageOrder is the fixed order in which stages run.
var StageOrder = []string{
	StageStaticAnalysis,
	StageUnitTesting,
	StageBuild,
	StageDeployment,
}

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final build status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// StageResult holds the analyzer outcome recorded on a stage.
type StageResult struct {
	Pass     bool            `json:"pass"`
	Critical bool            `json:"critical,omitempty"`
	Artifact string          `json:"artifact,omitempty"`
	Findings json.RawMessage `json:"findings,omitempty"`
}

// Stage is one step of a build.
type Stage struct {
	Name       string       `json:"name"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"start_time"`
	FinishedAt *time.Time   `json:"end_time,omitempty"`
	Results    *StageResult `json:"results,omitempty"`
}

// Build is one run of the pipeline for a single source submission.
type Build struct {
	ID          string     `json:"build_id"`
	Language    string     `json:"language"`
	Status      string     `json:"status"`
	Stages      []Stage    `json:"stages"`
	FailedStage string     `json:"failed_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the build has reached a final status.
func (b *Build) Terminal() bool {
	return IsTerminal(b.Status)
}

// Clone returns a deep copy of b that shares no memory with it.
func (b *Build) Clone() *Build {
	if b == nil {
		return nil
	}
	c := *b
	c.FinishedAt = cloneTime(b.FinishedAt)
	c.Stages = make([]Stage, len(b.Stages))
	for i, s := range b.Stages {
		c.Stages[i] = s.Clone()
	}
	return &c
}

// Clone returns a deep copy of s.
func (s Stage) Clone() Stage {
	s.FinishedAt = cloneTime(s.FinishedAt)
	if s.Results != nil {
		r := *s.Results
		r.Findings = slices.Clone(s.Results.Findings)
		s.Results = &r
	}
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

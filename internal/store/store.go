package store

import (
	"context"
	"errors"
	"time"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

var (
	// ErrNotFound is returned when a build or stage does not exist.
	ErrNotFound = errors.New("build not found")

	// ErrInvalidTransition is returned when a build status transition is not
	// allowed or a terminal build is mutated.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicate is returned when a build ID is already stored.
	ErrDuplicate = errors.New("build already exists")
)

// Completion is the terminal outcome recorded by FinishBuild.
type Completion struct {
	Status      string
	FailedStage string
	Error       string
	At          time.Time
}

// BuildStats holds aggregate build statistics.
type BuildStats struct {
	Total           int            `json:"total"`
	CountByStatus   map[string]int `json:"count_by_status"`
	CountByLanguage map[string]int `json:"count_by_language"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for builds. Every mutation
// replaces whole fields atomically and reads return copies that share no
// memory with the store.
type Store interface {
	CreateBuild(ctx context.Context, b *model.Build) error
	GetBuild(ctx context.Context, id string) (*model.Build, error)
	ListBuilds(ctx context.Context, limit, offset int) ([]*model.Build, int, error)

	// AppendStage adds a stage to a non-terminal build.
	AppendStage(ctx context.Context, buildID string, s model.Stage) error

	// UpdateStage replaces the stage with the same name on a non-terminal build.
	UpdateStage(ctx context.Context, buildID string, s model.Stage) error

	// FinishBuild moves a build to a terminal status.
	FinishBuild(ctx context.Context, buildID string, c Completion) error

	GetBuildStats(ctx context.Context) (*BuildStats, error)
	Close() error
}

// statsAccumulator folds builds into BuildStats.
type statsAccumulator struct {
	stats    BuildStats
	sumMS    float64
	finished int
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{stats: BuildStats{
		CountByStatus:   make(map[string]int),
		CountByLanguage: make(map[string]int),
	}}
}

func (a *statsAccumulator) add(status, language string, created time.Time, finished *time.Time) {
	a.stats.Total++
	a.stats.CountByStatus[status]++
	a.stats.CountByLanguage[language]++
	if finished != nil {
		a.sumMS += float64(finished.Sub(created).Milliseconds())
		a.finished++
	}
}

func (a *statsAccumulator) result() *BuildStats {
	if a.finished > 0 {
		a.stats.AvgDurationMS = a.sumMS / float64(a.finished)
	}
	return &a.stats
}

func checkNew(b *model.Build) error {
	if b.ID == "" {
		return errors.New("build has no id")
	}
	if b.Status != model.StatusPending && b.Status != model.StatusRunning {
		return ErrInvalidTransition
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is a Store held in process memory. It is the default: build
// history lives only as long as the server.
type MemoryStore struct {
	mu     sync.RWMutex
	builds map[string]*model.Build
	order  []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		builds: make(map[string]*model.Build),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// CreateBuild stores a copy of b.
func (s *MemoryStore) CreateBuild(_ context.Context, b *model.Build) error {
	if err := checkNew(b); err != nil {
		return fmt.Errorf("create build: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.builds[b.ID]; ok {
		return fmt.Errorf("create build %s: %w", b.ID, ErrDuplicate)
	}
	s.builds[b.ID] = b.Clone()
	s.order = append(s.order, b.ID)
	return nil
}

// GetBuild returns a snapshot of the build.
func (s *MemoryStore) GetBuild(_ context.Context, id string) (*model.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.builds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// ListBuilds returns builds newest first, along with the total count.
func (s *MemoryStore) ListBuilds(_ context.Context, limit, offset int) ([]*model.Build, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	offset = max(offset, 0)
	var out []*model.Build
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.builds[s.order[i]].Clone())
	}
	return out, total, nil
}

// AppendStage adds a stage to a non-terminal build.
func (s *MemoryStore) AppendStage(_ context.Context, buildID string, st model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.mutable(buildID)
	if err != nil {
		return fmt.Errorf("append stage: %w", err)
	}
	b.Stages = append(b.Stages, st.Clone())
	return nil
}

// UpdateStage replaces the stage named st.Name.
func (s *MemoryStore) UpdateStage(_ context.Context, buildID string, st model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.mutable(buildID)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	for i := range b.Stages {
		if b.Stages[i].Name == st.Name {
			b.Stages[i] = st.Clone()
			return nil
		}
	}
	return fmt.Errorf("update stage %q: %w", st.Name, ErrNotFound)
}

// FinishBuild moves a build to a terminal status.
func (s *MemoryStore) FinishBuild(_ context.Context, buildID string, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.builds[buildID]
	if !ok {
		return ErrNotFound
	}
	if !model.IsTerminal(c.Status) || !model.ValidTransition(b.Status, c.Status) {
		return fmt.Errorf("finish build %s: %s -> %s: %w", buildID, b.Status, c.Status, ErrInvalidTransition)
	}
	at := c.At
	b.Status = c.Status
	b.FailedStage = c.FailedStage
	b.Error = c.Error
	b.FinishedAt = &at
	return nil
}

// GetBuildStats aggregates over all stored builds.
func (s *MemoryStore) GetBuildStats(_ context.Context) (*BuildStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc := newStatsAccumulator()
	for _, id := range s.order {
		b := s.builds[id]
		acc.add(b.Status, b.Language, b.CreatedAt, b.FinishedAt)
	}
	return acc.result(), nil
}

func (s *MemoryStore) mutable(id string) (*model.Build, error) {
	b, ok := s.builds[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Terminal() {
		return nil, ErrInvalidTransition
	}
	return b, nil
}

// Package goals maintains the prioritized goal list, re-ranked from skill
// gaps each cycle.
package goals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// Manager owns goal lifecycle. Mutations happen only on the scheduler's
// control flow; readers use List/Active which read committed state.
type Manager struct {
	store     storage.GoalStore
	registry  *skills.Registry
	threshold float64
}

// NewManager creates a goal manager. threshold is the score at which a
// goal's target skill counts as satisfied.
func NewManager(store storage.GoalStore, registry *skills.Registry, threshold float64) (*Manager, error) {
	if store == nil || registry == nil {
		return nil, fmt.Errorf("goal store and skill registry are required")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("satisfied threshold must be positive, got %f", threshold)
	}
	return &Manager{store: store, registry: registry, threshold: threshold}, nil
}

// ProposeGoal creates an active goal for the skill unless one already exists,
// in which case the existing goal is returned unchanged. This keeps the
// at-most-one-active-goal-per-skill invariant without relying on callers.
func (m *Manager) ProposeGoal(ctx context.Context, skill, description string) (*types.Goal, error) {
	if skill == "" {
		return nil, fmt.Errorf("%w: skill name is required", storage.ErrInvalidInput)
	}

	existing, err := m.store.ActiveForSkill(ctx, skill)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("raise %s toward its ceiling", skill)
	}

	goal := &types.Goal{
		ID:          "goal:" + uuid.NewString(),
		Description: description,
		TargetSkill: skill,
		Priority:    m.registry.Ceiling() - m.registry.Score(skill),
		Status:      types.GoalActive,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := m.store.Insert(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// Rerank recomputes every active goal's priority from the current skill gap
// (ceiling - score), demotes goals whose target skill crossed the satisfied
// threshold, and returns the remaining active goals ordered by descending
// gap with ties broken by earliest creation.
func (m *Manager) Rerank(ctx context.Context) ([]types.Goal, error) {
	active, err := m.store.List(ctx, types.GoalActive)
	if err != nil {
		return nil, err
	}

	ceiling := m.registry.Ceiling()
	ranked := make([]types.Goal, 0, len(active))
	for _, goal := range active {
		score := m.registry.Score(goal.TargetSkill)

		if score >= m.threshold {
			goal.Status = types.GoalSatisfied
			if err := m.store.Update(ctx, &goal); err != nil {
				return nil, err
			}
			continue
		}

		goal.Priority = ceiling - score
		if err := m.store.Update(ctx, &goal); err != nil {
			return nil, err
		}
		ranked = append(ranked, goal)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})
	return ranked, nil
}

// Threshold returns the score at which a goal counts as satisfied.
func (m *Manager) Threshold() float64 { return m.threshold }

// Abandon retires an active goal without satisfying it.
func (m *Manager) Abandon(ctx context.Context, goalID string) error {
	goals, err := m.store.List(ctx, types.GoalActive)
	if err != nil {
		return err
	}
	for _, goal := range goals {
		if goal.ID == goalID {
			goal.Status = types.GoalAbandoned
			return m.store.Update(ctx, &goal)
		}
	}
	return storage.ErrNotFound
}

// Active returns all active goals, ordered by creation.
func (m *Manager) Active(ctx context.Context) ([]types.Goal, error) {
	return m.store.List(ctx, types.GoalActive)
}

// List returns goals with the given status ("" = all).
func (m *Manager) List(ctx context.Context, status types.GoalStatus) ([]types.Goal, error) {
	return m.store.List(ctx, status)
}

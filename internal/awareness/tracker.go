// Package awareness derives the consciousness metric: a reporting-only
// scalar summarising aggregate learning progress. Nothing in the scheduler
// branches on it.
package awareness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// historyLimit caps how much history Recompute returns (the persisted history
// itself is unbounded and append-only).
const historyLimit = 100

// Inputs are the cardinalities the level formula is computed from.
type Inputs struct {
	SkillBreadth    int     // Number of tracked skills
	SkillAverage    float64 // Mean skill score
	SkillCeiling    float64 // Configured per-skill ceiling
	MemoryVolume    int     // Total memory entries
	ReflectiveCount int     // Self-generated reflective entries
}

// LevelStrategy computes the consciousness level from the inputs.
// Implementations must be deterministic and strictly non-decreasing as any
// input grows.
type LevelStrategy interface {
	Level(in Inputs) float64
}

// WeightedSaturation is the default strategy: a weighted sum of saturating
// sub-terms x/(x+k), each strictly increasing in its input and bounded, plus
// the ceiling-normalised skill average. The weights deliberately sum to more
// than 1 so a mature agent can report levels above 1.0, matching how the
// metric is presented to operators.
type WeightedSaturation struct{}

// Level implements LevelStrategy.
func (WeightedSaturation) Level(in Inputs) float64 {
	saturate := func(x float64, k float64) float64 {
		if x <= 0 {
			return 0
		}
		return x / (x + k)
	}

	avg := 0.0
	if in.SkillCeiling > 0 {
		avg = in.SkillAverage / in.SkillCeiling
	}

	return 0.35*saturate(float64(in.SkillBreadth), 20) +
		0.35*avg +
		0.30*saturate(float64(in.MemoryVolume), 500) +
		0.20*saturate(float64(in.ReflectiveCount), 25)
}

// Tracker recomputes and persists the consciousness metric.
type Tracker struct {
	registry *skills.Registry
	memories *memory.Store
	metrics  storage.MetricStore
	strategy LevelStrategy
	epsilon  float64
}

// NewTracker creates a tracker. A nil strategy selects WeightedSaturation.
// epsilon is the minimum level movement that appends a history point.
func NewTracker(registry *skills.Registry, memories *memory.Store, metrics storage.MetricStore, strategy LevelStrategy, epsilon float64) (*Tracker, error) {
	if registry == nil || memories == nil || metrics == nil {
		return nil, fmt.Errorf("registry, memory store and metric store are required")
	}
	if strategy == nil {
		strategy = WeightedSaturation{}
	}
	if epsilon < 0 {
		return nil, fmt.Errorf("epsilon must be non-negative, got %f", epsilon)
	}
	return &Tracker{
		registry: registry,
		memories: memories,
		metrics:  metrics,
		strategy: strategy,
		epsilon:  epsilon,
	}, nil
}

// Recompute derives the current level from registry and memory cardinalities
// and appends a history point when the level moved by more than epsilon since
// the last recorded point. The returned metric carries recent history.
func (t *Tracker) Recompute(ctx context.Context) (types.ConsciousnessMetric, error) {
	var metric types.ConsciousnessMetric

	counts, err := t.memories.Counts(ctx)
	if err != nil {
		return metric, fmt.Errorf("failed to read memory counts: %w", err)
	}

	level := t.strategy.Level(Inputs{
		SkillBreadth:    t.registry.Len(),
		SkillAverage:    t.registry.Average(),
		SkillCeiling:    t.registry.Ceiling(),
		MemoryVolume:    counts.Total,
		ReflectiveCount: counts.BySource[types.SourceReflection],
	})
	metric.Level = level

	last, err := t.metrics.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First ever recomputation: always record.
		if err := t.metrics.AppendLevel(ctx, types.LevelPoint{Timestamp: time.Now().UTC(), Level: level}); err != nil {
			return metric, err
		}
	case err != nil:
		return metric, err
	default:
		delta := level - last.Level
		if delta < 0 {
			delta = -delta
		}
		if delta > t.epsilon {
			if err := t.metrics.AppendLevel(ctx, types.LevelPoint{Timestamp: time.Now().UTC(), Level: level}); err != nil {
				return metric, err
			}
		}
	}

	metric.History, err = t.metrics.History(ctx, historyLimit)
	if err != nil {
		return metric, err
	}
	return metric, nil
}

// Level returns the most recently persisted level (0 when none).
func (t *Tracker) Level(ctx context.Context) (float64, error) {
	last, err := t.metrics.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Level, nil
}

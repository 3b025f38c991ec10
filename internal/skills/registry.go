// Package skills provides the SkillRegistry, which tracks named capability
// scores with diminishing returns near a configured ceiling.
package skills

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// GainCurve maps the current score to a multiplier applied to raw deltas.
// Implementations must be deterministic and return values in [0, 1] that
// strictly decrease as score approaches ceiling, so equal raw deltas yield
// smaller gains near the cap.
type GainCurve interface {
	Factor(score, ceiling float64) float64
}

// LinearGainCurve is the default curve: factor = 1 - score/ceiling.
// The factor is 1 at score 0 and reaches 0 exactly at the ceiling.
type LinearGainCurve struct{}

// Factor implements GainCurve.
func (LinearGainCurve) Factor(score, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	f := 1 - score/ceiling
	if f < 0 {
		return 0
	}
	return f
}

// Registry holds the skill scores. All mutations go through the scheduler;
// readers get copied snapshots and never observe a partially-applied update.
type Registry struct {
	store   storage.SkillStore
	ceiling float64
	curve   GainCurve

	mu     sync.RWMutex
	skills map[string]types.SkillRecord
}

// NewRegistry creates a registry persisting through store, with the given
// per-skill score ceiling. A nil curve selects LinearGainCurve.
func NewRegistry(store storage.SkillStore, ceiling float64, curve GainCurve) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("skill store is required")
	}
	if ceiling <= 0 {
		return nil, fmt.Errorf("skill ceiling must be positive, got %f", ceiling)
	}
	if curve == nil {
		curve = LinearGainCurve{}
	}
	return &Registry{
		store:   store,
		ceiling: ceiling,
		curve:   curve,
		skills:  make(map[string]types.SkillRecord),
	}, nil
}

// Load replaces the in-memory registry with the persisted records.
// Called once at startup before the scheduler runs.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load skills: %w", err)
	}

	skills := make(map[string]types.SkillRecord, len(records))
	for _, rec := range records {
		skills[rec.Name] = rec
	}

	r.mu.Lock()
	r.skills = skills
	r.mu.Unlock()
	return nil
}

// Seed creates any missing skills at the given starting scores. Existing
// skills are left untouched so restarts never reset progress.
func (r *Registry) Seed(ctx context.Context, initial map[string]float64) error {
	r.mu.RLock()
	var missing []types.SkillRecord
	now := time.Now().UTC()
	for name, score := range initial {
		if _, ok := r.skills[name]; ok {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > r.ceiling {
			score = r.ceiling
		}
		missing = append(missing, types.SkillRecord{Name: name, Score: score, LastUpdated: now})
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}
	if err := r.store.SaveBatch(ctx, missing); err != nil {
		return err
	}

	r.mu.Lock()
	for _, rec := range missing {
		r.skills[rec.Name] = rec
	}
	r.mu.Unlock()
	return nil
}

// ApplyDeltas applies the given non-negative deltas. Unknown skill names are
// created with score 0 before applying. The gain is delta * curve factor,
// clamped to the ceiling.
//
// The batch is transactional: the records are persisted in one store
// transaction, and the in-memory map is swapped only after the write
// succeeds, so concurrent readers see either the old or the new registry.
func (r *Registry) ApplyDeltas(ctx context.Context, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}
	for name, delta := range deltas {
		if name == "" {
			return fmt.Errorf("%w: skill name is required", storage.ErrInvalidInput)
		}
		if delta < 0 {
			return fmt.Errorf("%w: negative delta %f for skill %q", storage.ErrInvalidInput, delta, name)
		}
	}

	now := time.Now().UTC()

	r.mu.RLock()
	updated := make([]types.SkillRecord, 0, len(deltas))
	for name, delta := range deltas {
		rec, ok := r.skills[name]
		if !ok {
			rec = types.SkillRecord{Name: name}
		}

		gain := delta * r.curve.Factor(rec.Score, r.ceiling)
		newScore := rec.Score + gain
		if newScore > r.ceiling {
			newScore = r.ceiling
		}

		rec.Trend = newScore - rec.Score
		rec.Score = newScore
		rec.LastUpdated = now
		updated = append(updated, rec)
	}
	r.mu.RUnlock()

	if err := r.store.SaveBatch(ctx, updated); err != nil {
		return err
	}

	r.mu.Lock()
	for _, rec := range updated {
		r.skills[rec.Name] = rec
	}
	r.mu.Unlock()
	return nil
}

// Decay multiplies all scores by (1 - rate). It represents skills fading
// without reinforcement and is never invoked mid-cycle.
func (r *Registry) Decay(ctx context.Context, rate float64) error {
	if rate < 0 || rate >= 1 {
		return fmt.Errorf("%w: decay rate %f must be in [0, 1)", storage.ErrInvalidInput, rate)
	}
	if rate == 0 {
		return nil
	}

	now := time.Now().UTC()

	r.mu.RLock()
	updated := make([]types.SkillRecord, 0, len(r.skills))
	for _, rec := range r.skills {
		newScore := rec.Score * (1 - rate)
		rec.Trend = newScore - rec.Score
		rec.Score = newScore
		rec.LastUpdated = now
		updated = append(updated, rec)
	}
	r.mu.RUnlock()

	if len(updated) == 0 {
		return nil
	}
	if err := r.store.SaveBatch(ctx, updated); err != nil {
		return err
	}

	r.mu.Lock()
	for _, rec := range updated {
		r.skills[rec.Name] = rec
	}
	r.mu.Unlock()
	return nil
}

// Snapshot returns a copy of all skill records ordered by descending score,
// ties broken by name for determinism. Safe to call from any goroutine.
func (r *Registry) Snapshot() []types.SkillRecord {
	r.mu.RLock()
	records := make([]types.SkillRecord, 0, len(r.skills))
	for _, rec := range r.skills {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Name < records[j].Name
	})
	return records
}

// Score returns the current score for a skill (0 if unknown).
func (r *Registry) Score(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skills[name].Score
}

// Ceiling returns the configured per-skill ceiling.
func (r *Registry) Ceiling() float64 { return r.ceiling }

// Len returns the number of tracked skills (skill breadth).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Average returns the mean score across tracked skills (0 when empty).
func (r *Registry) Average() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.skills) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range r.skills {
		sum += rec.Score
	}
	return sum / float64(len(r.skills))
}

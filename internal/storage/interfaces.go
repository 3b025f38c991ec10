// Package storage provides composable storage interfaces for the Cogito
// learning agent.
//
// The four durable collections (cycles, skills, memories, goals) plus the
// consciousness history are defined as small, focused interfaces that can be
// implemented independently and composed as a Store. Backends exist for
// SQLite (the default) and PostgreSQL.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/cogito/pkg/types"
)

// MemoryStore persists the append-only, deduplicated knowledge log.
type MemoryStore interface {
	// Insert stores the entry if its ID is not already present.
	// It returns false (and no error) when the entry already existed,
	// making insertion idempotent.
	Insert(ctx context.Context, entry *types.MemoryEntry) (bool, error)

	// Get retrieves an entry by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.MemoryEntry, error)

	// List retrieves entries matching the filter, ordered by created_at
	// ascending (ties broken by ID for determinism).
	List(ctx context.Context, filter MemoryFilter, opts ListOptions) ([]*types.MemoryEntry, error)

	// Counts returns the total entry count and the per-source breakdown.
	Counts(ctx context.Context) (MemoryCounts, error)

	// DecayImportance multiplies the importance of entries created before
	// cutoff by factor. It never deletes entries. Returns the number of
	// entries updated.
	DecayImportance(ctx context.Context, cutoff time.Time, factor float64) (int, error)
}

// SkillStore persists skill records.
type SkillStore interface {
	// Load returns all skill records.
	Load(ctx context.Context) ([]types.SkillRecord, error)

	// SaveBatch upserts the given records in a single transaction, so a
	// crash mid-update never leaves a partially-applied registry on disk.
	SaveBatch(ctx context.Context, records []types.SkillRecord) error
}

// GoalStore persists goals.
type GoalStore interface {
	// Insert stores a new goal. Inserting a second active goal for a skill
	// that already has one returns an InvariantViolationError.
	Insert(ctx context.Context, goal *types.Goal) error

	// Update rewrites an existing goal. Returns ErrNotFound if absent.
	Update(ctx context.Context, goal *types.Goal) error

	// List returns goals with the given status ("" = all),
	// ordered by created_at ascending.
	List(ctx context.Context, status types.GoalStatus) ([]types.Goal, error)

	// ActiveForSkill returns the active goal targeting the named skill.
	// Returns ErrNotFound when the skill has no active goal.
	ActiveForSkill(ctx context.Context, skill string) (*types.Goal, error)
}

// CycleStore persists the append-only learning cycle log.
type CycleStore interface {
	// Begin records the start of a cycle and assigns the next monotonic
	// cycle ID, writing it back to cycle.CycleID.
	Begin(ctx context.Context, cycle *types.LearningCycle) error

	// Finalize rewrites the cycle record with its end time and outcome.
	Finalize(ctx context.Context, cycle *types.LearningCycle) error

	// Latest returns the most recent cycle record.
	// Returns ErrNotFound when no cycle has ever run.
	Latest(ctx context.Context) (*types.LearningCycle, error)

	// Recent returns up to limit cycle records, newest first.
	Recent(ctx context.Context, limit int) ([]types.LearningCycle, error)
}

// MetricStore persists the append-only consciousness history.
type MetricStore interface {
	// AppendLevel records a new history point. History is never rewritten.
	AppendLevel(ctx context.Context, point types.LevelPoint) error

	// Latest returns the most recent history point.
	// Returns ErrNotFound when the history is empty.
	Latest(ctx context.Context) (types.LevelPoint, error)

	// History returns up to limit points, oldest first.
	History(ctx context.Context, limit int) ([]types.LevelPoint, error)
}

// Store composes the five collections behind one backend handle.
type Store interface {
	Memories() MemoryStore
	Skills() SkillStore
	Goals() GoalStore
	Cycles() CycleStore
	Metrics() MetricStore

	// Close releases any resources held by the backend.
	Close() error
}

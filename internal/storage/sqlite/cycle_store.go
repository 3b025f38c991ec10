package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// CycleStore implements storage.CycleStore using SQLite. Cycle IDs come from
// the AUTOINCREMENT primary key, so they stay monotonic across restarts and
// the periodic triggers derived from them are restart-safe.
type CycleStore struct {
	db *sql.DB
}

// Begin records the start of a cycle and writes the assigned ID back.
func (s *CycleStore) Begin(ctx context.Context, cycle *types.LearningCycle) error {
	if cycle == nil {
		return storage.ErrInvalidInput
	}
	if cycle.StartedAt.IsZero() {
		cycle.StartedAt = time.Now().UTC()
	}
	if cycle.Phase == "" {
		cycle.Phase = types.PhaseGathering
	}
	if cycle.Outcome == "" {
		cycle.Outcome = types.OutcomeFailed
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (phase, started_at, outcome, topic, notes)
		VALUES (?, ?, ?, ?, ?)
	`, string(cycle.Phase), cycle.StartedAt, string(cycle.Outcome), cycle.Topic, cycle.Notes)
	if err != nil {
		return &storage.PersistenceError{Op: "cycles.begin", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return &storage.PersistenceError{Op: "cycles.begin", Err: err}
	}
	cycle.CycleID = id
	return nil
}

// Finalize rewrites the cycle record with its end time and outcome.
func (s *CycleStore) Finalize(ctx context.Context, cycle *types.LearningCycle) error {
	if cycle == nil || cycle.CycleID == 0 {
		return storage.ErrInvalidInput
	}
	if cycle.EndedAt == nil {
		now := time.Now().UTC()
		cycle.EndedAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles
		SET phase = ?, ended_at = ?, outcome = ?, topic = ?, notes = ?
		WHERE cycle_id = ?
	`, string(cycle.Phase), cycle.EndedAt, string(cycle.Outcome), cycle.Topic, cycle.Notes, cycle.CycleID)
	if err != nil {
		return &storage.PersistenceError{Op: "cycles.finalize", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &storage.PersistenceError{Op: "cycles.finalize", Err: err}
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Latest returns the most recent cycle record.
func (s *CycleStore) Latest(ctx context.Context) (*types.LearningCycle, error) {
	cycles, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, storage.ErrNotFound
	}
	return &cycles[0], nil
}

// Recent returns up to limit cycle records, newest first.
func (s *CycleStore) Recent(ctx context.Context, limit int) ([]types.LearningCycle, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, phase, started_at, ended_at, outcome, topic, notes
		FROM cycles
		ORDER BY cycle_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.LearningCycle
	for rows.Next() {
		var c types.LearningCycle
		var phase, outcome string
		var endedAt sql.NullTime
		if err := rows.Scan(&c.CycleID, &phase, &c.StartedAt, &endedAt, &outcome, &c.Topic, &c.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.Phase = types.CyclePhase(phase)
		c.Outcome = types.CycleOutcome(outcome)
		if endedAt.Valid {
			c.EndedAt = &endedAt.Time
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

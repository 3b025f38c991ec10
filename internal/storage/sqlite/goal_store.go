package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// GoalStore implements storage.GoalStore using SQLite.
//
// The one-active-goal-per-skill invariant is enforced by a partial unique
// index; the GoalManager checks before inserting, so hitting the index means
// a logic defect and is reported as an InvariantViolationError.
type GoalStore struct {
	db *sql.DB
}

// Insert stores a new goal.
func (s *GoalStore) Insert(ctx context.Context, goal *types.Goal) error {
	if goal == nil {
		return storage.ErrInvalidInput
	}
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	if goal.UpdatedAt.IsZero() {
		goal.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, description, target_skill, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, goal.ID, goal.Description, goal.TargetSkill, goal.Priority, string(goal.Status), goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &storage.InvariantViolationError{
				Invariant: "one active goal per skill",
				Detail:    fmt.Sprintf("skill %q already has an active goal", goal.TargetSkill),
			}
		}
		return &storage.PersistenceError{Op: "goals.insert", Err: err}
	}
	return nil
}

// Update rewrites an existing goal.
func (s *GoalStore) Update(ctx context.Context, goal *types.Goal) error {
	if goal == nil {
		return storage.ErrInvalidInput
	}
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	goal.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE goals
		SET description = ?, target_skill = ?, priority = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, goal.Description, goal.TargetSkill, goal.Priority, string(goal.Status), goal.UpdatedAt, goal.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &storage.InvariantViolationError{
				Invariant: "one active goal per skill",
				Detail:    fmt.Sprintf("skill %q already has an active goal", goal.TargetSkill),
			}
		}
		return &storage.PersistenceError{Op: "goals.update", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &storage.PersistenceError{Op: "goals.update", Err: err}
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns goals with the given status ("" = all), ordered by creation.
func (s *GoalStore) List(ctx context.Context, status types.GoalStatus) ([]types.Goal, error) {
	query := `SELECT id, description, target_skill, priority, status, created_at, updated_at FROM goals`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []types.Goal
	for rows.Next() {
		var g types.Goal
		var st string
		if err := rows.Scan(&g.ID, &g.Description, &g.TargetSkill, &g.Priority, &st, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		g.Status = types.GoalStatus(st)
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// ActiveForSkill returns the active goal for the named skill.
func (s *GoalStore) ActiveForSkill(ctx context.Context, skill string) (*types.Goal, error) {
	if skill == "" {
		return nil, fmt.Errorf("%w: skill name is required", storage.ErrInvalidInput)
	}

	var g types.Goal
	var st string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, target_skill, priority, status, created_at, updated_at
		FROM goals
		WHERE target_skill = ? AND status = 'active'
	`, skill).Scan(&g.ID, &g.Description, &g.TargetSkill, &g.Priority, &st, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active goal: %w", err)
	}
	g.Status = types.GoalStatus(st)
	return &g, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

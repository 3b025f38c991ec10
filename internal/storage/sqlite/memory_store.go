package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db *sql.DB
}

// Insert stores the entry if absent. Returns false when the ID already
// exists; the stored entry is left untouched in that case.
func (s *MemoryStore) Insert(ctx context.Context, entry *types.MemoryEntry) (bool, error) {
	if entry == nil {
		return false, storage.ErrInvalidInput
	}
	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, source, content, importance, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, entry.ID, string(entry.Source), entry.Content, entry.Importance, entry.CreatedAt)
	if err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}
	if affected == 0 {
		// Already present: idempotent no-op, nothing to commit.
		return false, nil
	}

	for _, skill := range entry.Associations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_skills (memory_id, skill)
			VALUES (?, ?)
			ON CONFLICT(memory_id, skill) DO NOTHING
		`, entry.ID, skill); err != nil {
			return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}
	return true, nil
}

// Get retrieves an entry by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var entry types.MemoryEntry
	var source string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, content, importance, created_at
		FROM memories
		WHERE id = ?
	`, id).Scan(&entry.ID, &source, &entry.Content, &entry.Importance, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	entry.Source = types.MemorySource(source)

	if entry.Associations, err = s.associations(ctx, entry.ID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List retrieves entries matching the filter, ordered by created_at ascending
// with ties broken by ID so that repeated calls page deterministically.
func (s *MemoryStore) List(ctx context.Context, filter storage.MemoryFilter, opts storage.ListOptions) ([]*types.MemoryEntry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	query := `SELECT DISTINCT m.id, m.source, m.content, m.importance, m.created_at FROM memories m`
	var args []interface{}
	var where []string

	if filter.Skill != "" {
		query += ` JOIN memory_skills ms ON ms.memory_id = m.id`
		where = append(where, `ms.skill = ?`)
		args = append(args, filter.Skill)
	}
	if filter.Source != "" {
		where = append(where, `m.source = ?`)
		args = append(args, string(filter.Source))
	}
	if !filter.Since.IsZero() {
		where = append(where, `m.created_at >= ?`)
		args = append(args, filter.Since)
	}

	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}

	query += ` ORDER BY m.created_at ASC, m.id ASC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var entries []*types.MemoryEntry
	for rows.Next() {
		var entry types.MemoryEntry
		var source string
		if err := rows.Scan(&entry.ID, &source, &entry.Content, &entry.Importance, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		entry.Source = types.MemorySource(source)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	for _, entry := range entries {
		if entry.Associations, err = s.associations(ctx, entry.ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Counts returns the total and per-source entry counts.
func (s *MemoryStore) Counts(ctx context.Context) (storage.MemoryCounts, error) {
	counts := storage.MemoryCounts{BySource: make(map[types.MemorySource]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM memories GROUP BY source`)
	if err != nil {
		return counts, fmt.Errorf("failed to count memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return counts, fmt.Errorf("failed to scan count: %w", err)
		}
		counts.BySource[types.MemorySource(source)] = n
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("failed to count memories: %w", err)
	}
	return counts, nil
}

// DecayImportance multiplies the importance of entries created before cutoff
// by factor. Entries are never deleted. Returns the number of rows updated.
func (s *MemoryStore) DecayImportance(ctx context.Context, cutoff time.Time, factor float64) (int, error) {
	if factor < 0 || factor > 1 {
		return 0, fmt.Errorf("%w: decay factor %f is outside [0.0, 1.0]", storage.ErrInvalidInput, factor)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET importance = importance * ?
		WHERE created_at < ?
	`, factor, cutoff)
	if err != nil {
		return 0, &storage.PersistenceError{Op: "memories.decay", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &storage.PersistenceError{Op: "memories.decay", Err: err}
	}
	return int(affected), nil
}

// associations loads the skill names linked to a memory, ordered by name.
func (s *MemoryStore) associations(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill FROM memory_skills WHERE memory_id = ? ORDER BY skill
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load associations: %w", err)
	}
	defer rows.Close()

	var skills []string
	for rows.Next() {
		var skill string
		if err := rows.Scan(&skill); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

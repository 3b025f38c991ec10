package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// SkillStore implements storage.SkillStore using SQLite.
type SkillStore struct {
	db *sql.DB
}

// Load returns all skill records, ordered by name.
func (s *SkillStore) Load(ctx context.Context) ([]types.SkillRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, score, trend, last_updated FROM skills ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	defer rows.Close()

	var records []types.SkillRecord
	for rows.Next() {
		var rec types.SkillRecord
		if err := rows.Scan(&rec.Name, &rec.Score, &rec.Trend, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveBatch upserts all records inside a single transaction. Either every
// record lands or none do, so a crash never leaves a half-applied registry.
func (s *SkillStore) SaveBatch(ctx context.Context, records []types.SkillRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "skills.save", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO skills (name, score, trend, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			score = excluded.score,
			trend = excluded.trend,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return &storage.PersistenceError{Op: "skills.save", Err: err}
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Name == "" {
			return fmt.Errorf("%w: skill name is required", storage.ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx, rec.Name, rec.Score, rec.Trend, rec.LastUpdated); err != nil {
			return &storage.PersistenceError{Op: "skills.save", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.PersistenceError{Op: "skills.save", Err: err}
	}
	return nil
}

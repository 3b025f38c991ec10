package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// MetricStore implements storage.MetricStore using SQLite.
type MetricStore struct {
	db *sql.DB
}

// AppendLevel records a new consciousness history point.
func (s *MetricStore) AppendLevel(ctx context.Context, point types.LevelPoint) error {
	if point.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consciousness_history (timestamp, level) VALUES (?, ?)
	`, point.Timestamp, point.Level)
	if err != nil {
		return &storage.PersistenceError{Op: "metrics.append", Err: err}
	}
	return nil
}

// Latest returns the most recent history point.
func (s *MetricStore) Latest(ctx context.Context) (types.LevelPoint, error) {
	var point types.LevelPoint
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp, level FROM consciousness_history ORDER BY seq DESC LIMIT 1
	`).Scan(&point.Timestamp, &point.Level)
	if err == sql.ErrNoRows {
		return point, storage.ErrNotFound
	}
	if err != nil {
		return point, fmt.Errorf("failed to get latest level: %w", err)
	}
	return point, nil
}

// History returns up to limit points, oldest first.
func (s *MetricStore) History(ctx context.Context, limit int) ([]types.LevelPoint, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, level FROM (
			SELECT seq, timestamp, level
			FROM consciousness_history
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var points []types.LevelPoint
	for rows.Next() {
		var p types.LevelPoint
		if err := rows.Scan(&p.Timestamp, &p.Level); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

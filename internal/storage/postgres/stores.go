package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/pkg/types"
)

// MemoryStore implements storage.MemoryStore using PostgreSQL.
type MemoryStore struct {
	db *sql.DB
}

// Insert stores the entry if absent. Returns false when the ID already exists.
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, string(entry.Source), entry.Content, entry.Importance, entry.CreatedAt)
	if err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, &storage.PersistenceError{Op: "memories.insert", Err: err}
	}
	if affected == 0 {
		return false, nil
	}

	for _, skill := range entry.Associations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_skills (memory_id, skill)
			VALUES ($1, $2)
			ON CONFLICT (memory_id, skill) DO NOTHING
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
		FROM memories WHERE id = $1
	`, id).Scan(&entry.ID, &source, &entry.Content, &entry.Importance, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	entry.Source = types.MemorySource(source)

	if entry.Associations, err = s.associations(ctx, entry.ID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List retrieves entries matching the filter, created_at ascending.
func (s *MemoryStore) List(ctx context.Context, filter storage.MemoryFilter, opts storage.ListOptions) ([]*types.MemoryEntry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	query := `SELECT DISTINCT m.id, m.source, m.content, m.importance, m.created_at FROM memories m`
	var args []interface{}
	var where []string

	if filter.Skill != "" {
		query += ` JOIN memory_skills ms ON ms.memory_id = m.id`
		args = append(args, filter.Skill)
		where = append(where, fmt.Sprintf(`ms.skill = $%d`, len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		where = append(where, fmt.Sprintf(`m.source = $%d`, len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf(`m.created_at >= $%d`, len(args)))
	}

	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}

	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(` ORDER BY m.created_at ASC, m.id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
	}
	defer rows.Close()

	var entries []*types.MemoryEntry
	for rows.Next() {
		var entry types.MemoryEntry
		var source string
		if err := rows.Scan(&entry.ID, &source, &entry.Content, &entry.Importance, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		entry.Source = types.MemorySource(source)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
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
		return counts, fmt.Errorf("postgres: failed to count memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return counts, fmt.Errorf("postgres: failed to scan count: %w", err)
		}
		counts.BySource[types.MemorySource(source)] = n
		counts.Total += n
	}
	return counts, rows.Err()
}

// DecayImportance multiplies importance of entries older than cutoff by factor.
func (s *MemoryStore) DecayImportance(ctx context.Context, cutoff time.Time, factor float64) (int, error) {
	if factor < 0 || factor > 1 {
		return 0, fmt.Errorf("%w: decay factor %f is outside [0.0, 1.0]", storage.ErrInvalidInput, factor)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET importance = importance * $1 WHERE created_at < $2
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

func (s *MemoryStore) associations(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill FROM memory_skills WHERE memory_id = $1 ORDER BY skill
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load associations: %w", err)
	}
	defer rows.Close()

	var skills []string
	for rows.Next() {
		var skill string
		if err := rows.Scan(&skill); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan association: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

// SkillStore implements storage.SkillStore using PostgreSQL.
type SkillStore struct {
	db *sql.DB
}

// Load returns all skill records, ordered by name.
func (s *SkillStore) Load(ctx context.Context) ([]types.SkillRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, score, trend, last_updated FROM skills ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load skills: %w", err)
	}
	defer rows.Close()

	var records []types.SkillRecord
	for rows.Next() {
		var rec types.SkillRecord
		if err := rows.Scan(&rec.Name, &rec.Score, &rec.Trend, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan skill: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveBatch upserts all records inside a single transaction.
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
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

// GoalStore implements storage.GoalStore using PostgreSQL.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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
		SET description = $1, target_skill = $2, priority = $3, status = $4, updated_at = $5
		WHERE id = $6
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
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []types.Goal
	for rows.Next() {
		var g types.Goal
		var st string
		if err := rows.Scan(&g.ID, &g.Description, &g.TargetSkill, &g.Priority, &st, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan goal: %w", err)
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
		WHERE target_skill = $1 AND status = 'active'
	`, skill).Scan(&g.ID, &g.Description, &g.TargetSkill, &g.Priority, &st, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get active goal: %w", err)
	}
	g.Status = types.GoalStatus(st)
	return &g, nil
}

// CycleStore implements storage.CycleStore using PostgreSQL.
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

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cycles (phase, started_at, outcome, topic, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING cycle_id
	`, string(cycle.Phase), cycle.StartedAt, string(cycle.Outcome), cycle.Topic, cycle.Notes).Scan(&cycle.CycleID)
	if err != nil {
		return &storage.PersistenceError{Op: "cycles.begin", Err: err}
	}
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
		SET phase = $1, ended_at = $2, outcome = $3, topic = $4, notes = $5
		WHERE cycle_id = $6
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
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.LearningCycle
	for rows.Next() {
		var c types.LearningCycle
		var phase, outcome string
		var endedAt sql.NullTime
		if err := rows.Scan(&c.CycleID, &phase, &c.StartedAt, &endedAt, &outcome, &c.Topic, &c.Notes); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan cycle: %w", err)
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

// MetricStore implements storage.MetricStore using PostgreSQL.
type MetricStore struct {
	db *sql.DB
}

// AppendLevel records a new consciousness history point.
func (s *MetricStore) AppendLevel(ctx context.Context, point types.LevelPoint) error {
	if point.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consciousness_history (timestamp, level) VALUES ($1, $2)
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
		return point, fmt.Errorf("postgres: failed to get latest level: %w", err)
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
			LIMIT $1
		) recent ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load history: %w", err)
	}
	defer rows.Close()

	var points []types.LevelPoint
	for rows.Next() {
		var p types.LevelPoint
		if err := rows.Scan(&p.Timestamp, &p.Level); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan history point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

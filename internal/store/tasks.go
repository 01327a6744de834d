package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/imkarma/taskhive/internal/apperr"
)

const taskColumns = `id, user_id, project_id, board_id, title, description, status, priority,
	category, phase, tags, position, created_at, updated_at,
	source_list, source_file, import_id, content_hash, imported_at,
	claim_holder, claimed_at, modified_by, modified_at`

// ReservePositions atomically reserves n consecutive positions in scope and
// returns the first one. Concurrent callers never receive overlapping ranges.
// An empty scope starts at 0.
func (s *Store) ReservePositions(ctx context.Context, scope OwnerScope, n int) (int64, error) {
	if n <= 0 {
		return 0, apperr.InvalidInput("reserve positions", "count must be positive")
	}
	key := scope.Key()

	// Single statement: the counter row is seeded from the highest existing
	// position the first time a scope is seen, then bumped by n.
	var last int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO scope_positions (scope_key, last_position)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) FROM tasks WHERE scope_key = ?) + ?)
		ON CONFLICT(scope_key) DO UPDATE
			SET last_position = scope_positions.last_position + ?
		RETURNING last_position`,
		key, key, n, n,
	).Scan(&last)
	if err != nil {
		return 0, apperr.Internal("reserve positions", err)
	}
	return last - int64(n) + 1, nil
}

// InsertTask persists t. Missing ID, status, priority and timestamps are
// filled in. A task with a non-nil Provenance is recorded as imported.
func (s *Store) InsertTask(ctx context.Context, t *Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return apperr.InvalidInput("insert task", "title is required")
	}
	if t.Scope.UserID == "" {
		return apperr.InvalidInput("insert task", "owner scope requires a user")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return apperr.Internal("insert task", fmt.Errorf("marshal tags: %w", err))
	}

	var (
		list, file, importID, hash sql.NullString
		importedAt                 sql.NullTime
	)
	if p := t.Provenance; p != nil {
		list = nullString(p.ListName)
		file = nullString(p.SourceFile)
		importID = nullString(p.ImportID)
		hash = nullString(p.ContentHash)
		if p.ImportedAt.IsZero() {
			p.ImportedAt = now
		}
		importedAt = sql.NullTime{Time: p.ImportedAt, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("insert task", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, scope_key, user_id, project_id, board_id, title, description,
			status, priority, category, phase, tags, position, created_at, updated_at,
			source_list, source_file, import_id, content_hash, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Scope.Key(), t.Scope.UserID, t.Scope.ProjectID, t.Scope.BoardID,
		t.Title, t.Description, t.Status, t.Priority, t.Category, t.Phase, string(tags),
		t.Position, t.CreatedAt, t.UpdatedAt,
		list, file, importID, hash, importedAt,
	)
	if err != nil {
		return apperr.Internal("insert task", err)
	}

	eventType, content := "created", t.Title
	if t.Provenance != nil {
		eventType = "imported"
		content = fmt.Sprintf("%s (%s)", t.Provenance.ListName, t.Provenance.SourceFile)
	}
	if err := addEvent(ctx, tx, t.ID, "", eventType, content, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("insert task", err)
	}
	return nil
}

// CreateTask appends a hand-made task to the end of scope.
func (s *Store) CreateTask(ctx context.Context, scope OwnerScope, title, description string, priority Priority) (*Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.InvalidInput("create task", "title is required")
	}
	pos, err := s.ReservePositions(ctx, scope, 1)
	if err != nil {
		return nil, err
	}
	t := &Task{
		Scope:       scope,
		Title:       title,
		Description: description,
		Priority:    priority,
		Position:    pos,
	}
	if err := s.InsertTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("get task", "task "+id)
	}
	if err != nil {
		return nil, apperr.Internal("get task", err)
	}
	return t, nil
}

// ResolveTaskID expands a unique ID prefix (as printed by ShortID) to the
// full task ID.
func (s *Store) ResolveTaskID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", apperr.InvalidInput("resolve task", "task id is required")
	}
	if strings.ContainsAny(prefix, "%_") {
		return "", apperr.InvalidInput("resolve task", "task id contains invalid characters")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE id LIKE ? LIMIT 2`, prefix+"%")
	if err != nil {
		return "", apperr.Internal("resolve task", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", apperr.Internal("resolve task", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", apperr.Internal("resolve task", err)
	}

	switch len(ids) {
	case 0:
		return "", apperr.NotFound("resolve task", "task "+prefix)
	case 1:
		return ids[0], nil
	default:
		return "", apperr.InvalidInput("resolve task", "ambiguous task id "+prefix)
	}
}

// ListTasks returns tasks matching the filter, ordered by scope and position.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if f.Scope != nil {
		query += ` AND scope_key = ?`
		args = append(args, f.Scope.Key())
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Phase != "" {
		query += ` AND phase = ?`
		args = append(args, f.Phase)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Holder != "" {
		query += ` AND claim_holder = ?`
		args = append(args, f.Holder)
	}
	query += ` ORDER BY scope_key, position`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Internal("list tasks", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	return tasks, nil
}

// UpdateTaskStatus changes a task's status. Moving a task out of
// IN_PROGRESS drops its claim.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, by string) error {
	if _, ok := ParseStatus(string(status)); !ok {
		return apperr.InvalidInput("update status", "unknown status "+string(status))
	}
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("update status", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			status = ?,
			claim_holder = CASE WHEN ? = 'IN_PROGRESS' THEN claim_holder ELSE NULL END,
			claimed_at = CASE WHEN ? = 'IN_PROGRESS' THEN claimed_at ELSE NULL END,
			modified_by = ?, modified_at = ?, updated_at = ?
		WHERE id = ?`,
		status, status, status, nullString(by), now, now, id,
	)
	if err != nil {
		return apperr.Internal("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("update status", "task "+id)
	}
	if err := addEvent(ctx, tx, id, by, "status_changed", string(status), now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("update status", err)
	}
	return nil
}

// UpdateTaskPriority changes a task's priority.
func (s *Store) UpdateTaskPriority(ctx context.Context, id string, priority Priority, by string) error {
	p, ok := ParsePriority(string(priority))
	if !ok {
		return apperr.InvalidInput("update priority", "unknown priority "+string(priority))
	}
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("update priority", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET priority = ?, modified_by = ?, modified_at = ?, updated_at = ? WHERE id = ?`,
		p, nullString(by), now, now, id,
	)
	if err != nil {
		return apperr.Internal("update priority", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("update priority", "task "+id)
	}
	if err := addEvent(ctx, tx, id, by, "priority_changed", string(p), now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("update priority", err)
	}
	return nil
}

// ContentHashImported reports whether a file with the given content hash
// has already been imported into scope.
func (s *Store) ContentHashImported(ctx context.Context, scope OwnerScope, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE scope_key = ? AND content_hash = ?`,
		scope.Key(), hash,
	).Scan(&n)
	if err != nil {
		return false, apperr.Internal("check content hash", err)
	}
	return n > 0, nil
}

// CountByStatus returns how many tasks each status holds, optionally limited
// to one scope.
func (s *Store) CountByStatus(ctx context.Context, scope *OwnerScope) (map[TaskStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks`
	var args []any
	if scope != nil {
		query += ` WHERE scope_key = ?`
		args = append(args, scope.Key())
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("count tasks", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var st TaskStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, apperr.Internal("count tasks", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var (
		t                          Task
		tags                       string
		list, file, importID, hash sql.NullString
		importedAt                 sql.NullTime
		holder, modifiedBy         sql.NullString
		claimedAt, modifiedAt      sql.NullTime
	)
	err := sc.Scan(
		&t.ID, &t.Scope.UserID, &t.Scope.ProjectID, &t.Scope.BoardID,
		&t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Category, &t.Phase, &tags, &t.Position, &t.CreatedAt, &t.UpdatedAt,
		&list, &file, &importID, &hash, &importedAt,
		&holder, &claimedAt, &modifiedBy, &modifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of task %s: %w", t.ID, err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	if importID.Valid {
		t.Provenance = &Provenance{
			ListName:    list.String,
			SourceFile:  file.String,
			Category:    t.Category,
			ImportID:    importID.String,
			ContentHash: hash.String,
			ImportedAt:  importedAt.Time,
		}
	}
	if holder.Valid {
		t.Claim = &ClaimInfo{
			Holder:     holder.String,
			ClaimedAt:  claimedAt.Time,
			ModifiedBy: modifiedBy.String,
			ModifiedAt: modifiedAt.Time,
		}
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

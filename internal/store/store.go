package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agalitsyn/sqlite"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go "sqlite" driver behind sqlite.Connect

	"github.com/imkarma/taskhive/internal/apperr"
)

//go:embed *.sql
var migrations embed.FS

// busyTimeout lets concurrent writers from other connections or replicas
// wait for the write lock instead of failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// Store provides access to the backlog database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the SQLite database at the given path and applies
// pending migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dbPath, busyTimeout.Milliseconds())
	db, err := sqlite.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := sqlite.MigrateUp(db, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Owner scope records ---

// CreateUser inserts a user. Names are unique.
func (s *Store) CreateUser(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("create user", "name is required")
	}
	u := &User{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Name, u.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Internal("create user", err)
	}
	return u, nil
}

// GetUser looks a user up by ID or, failing that, by name.
func (s *Store) GetUser(ctx context.Context, idOrName string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE id = ? OR name = ? LIMIT 1`,
		idOrName, idOrName,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("get user", "user "+idOrName)
	}
	if err != nil {
		return nil, apperr.Internal("get user", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, apperr.Internal("scan user", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateProject inserts a project owned by userID.
func (s *Store) CreateProject(ctx context.Context, userID, name string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.InvalidInput("create project", "name is required")
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	p := &Project{ID: uuid.NewString(), UserID: userID, Name: strings.TrimSpace(name), CreatedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Internal("create project", err)
	}
	return p, nil
}

// CreateBoard inserts a board inside projectID.
func (s *Store) CreateBoard(ctx context.Context, projectID, name string) (*Board, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperr.InvalidInput("create board", "name is required")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if err != nil {
		return nil, apperr.Internal("create board", err)
	}
	if exists == 0 {
		return nil, apperr.NotFound("create board", "project "+projectID)
	}
	b := &Board{ID: uuid.NewString(), ProjectID: projectID, Name: strings.TrimSpace(name), CreatedAt: s.now()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO boards (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Name, b.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Internal("create board", err)
	}
	return b, nil
}

// CheckScope verifies that every reference in scope exists and that the
// project belongs to the user and the board to the project.
func (s *Store) CheckScope(ctx context.Context, scope OwnerScope) error {
	if scope.UserID == "" {
		return apperr.InvalidInput("check scope", "user is required")
	}
	if scope.BoardID != "" && scope.ProjectID == "" {
		return apperr.InvalidInput("check scope", "board requires a project")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, scope.UserID).Scan(&n); err != nil {
		return apperr.Internal("check scope", err)
	}
	if n == 0 {
		return apperr.NotFound("check scope", "user "+scope.UserID)
	}

	if scope.ProjectID != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projects WHERE id = ? AND user_id = ?`, scope.ProjectID, scope.UserID,
		).Scan(&n)
		if err != nil {
			return apperr.Internal("check scope", err)
		}
		if n == 0 {
			return apperr.NotFound("check scope", "project "+scope.ProjectID)
		}
	}

	if scope.BoardID != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM boards WHERE id = ? AND project_id = ?`, scope.BoardID, scope.ProjectID,
		).Scan(&n)
		if err != nil {
			return apperr.Internal("check scope", err)
		}
		if n == 0 {
			return apperr.NotFound("check scope", "board "+scope.BoardID)
		}
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/conclave/internal/domain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens dsn and applies pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations applies the embedded migrations. The migrate instance is not
// closed because closing its driver would close db.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, query_id, connection_id, status, source, roles, degraded, started_at, ended_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.QueryID, nullString(run.ConnectionID), run.Status, nullString(string(run.Source)),
		joinRoles(run.Roles), run.Degraded, run.StartedAt, run.EndedAt, nullString(string(run.Error)))
	return err
}

// UpdateRunCompleted records the final state of a run.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, run *domain.Run) error {
	endedAt := time.Now()
	if run.EndedAt != nil {
		endedAt = *run.EndedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, source = ?, roles = ?, degraded = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		run.Status, nullString(string(run.Source)), joinRoles(run.Roles), run.Degraded, endedAt,
		nullString(string(run.Error)), run.RunID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.RunID, ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, query_id, connection_id, status, source, roles, degraded, started_at, ended_at, error`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var run domain.Run
	var connID, source, roles, errKind sql.NullString
	var endedAt sql.NullTime
	if err := sc.Scan(&run.RunID, &run.QueryID, &connID, &run.Status, &source, &roles,
		&run.Degraded, &run.StartedAt, &endedAt, &errKind); err != nil {
		return nil, err
	}
	run.ConnectionID = connID.String
	run.Source = domain.RoutingSource(source.String)
	run.Roles = splitRoles(roles.String)
	run.Error = domain.ErrorKind(errKind.String)
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, nullString(string(event.Payload)))
	return err
}

// GetEvents retrieves events for a run after afterTs, oldest first.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, run_id, ts, type, payload FROM events
		 WHERE run_id = ? AND ts > ? ORDER BY ts ASC, rowid ASC LIMIT ?`,
		runID, afterTs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.Ts, &ev.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func joinRoles(roles []domain.RoleName) sql.NullString {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return nullString(strings.Join(parts, ","))
}

func splitRoles(s string) []domain.RoleName {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]domain.RoleName, len(parts))
	for i, p := range parts {
		roles[i] = domain.RoleName(p)
	}
	return roles
}

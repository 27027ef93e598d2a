// Package persistence provides SQLite-backed storage for plans and
// sandbox session records.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"codepilot/pkg/logx"
	"codepilot/pkg/plan"
)

// CurrentSchemaVersion defines the current schema version for migration
// support.
const CurrentSchemaVersion = 1

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("persistence: not found")

// Store is an explicit database handle. Callers construct one and pass it
// by reference; there is no package-level singleton.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema is at the current version. The connection pool is capped at one
// writer, which is all SQLite supports.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("database ready: %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// ReadPlan loads the plan document stored under ref. The second return
// value reports whether a document exists.
func (s *Store) ReadPlan(ctx context.Context, ref string) (plan.TaskPlan, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM plans WHERE ref = ?`, ref).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.NewTaskPlan(), false, nil
	}
	if err != nil {
		return plan.TaskPlan{}, false, fmt.Errorf("read plan %s: %w", ref, err)
	}

	var p plan.TaskPlan
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return plan.TaskPlan{}, false, fmt.Errorf("decode plan %s: %w", ref, err)
	}
	return p, true, nil
}

// WritePlan stores p under ref, replacing the whole document in one
// statement.
func (s *Store) WritePlan(ctx context.Context, ref string, p plan.TaskPlan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", ref, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (ref, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, ref, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write plan %s: %w", ref, err)
	}
	return nil
}

// SessionRecord tracks one sandbox environment across process restarts, so
// a later run can resume the container instead of recloning.
type SessionRecord struct {
	ID         string
	PlanRef    string
	RepoURL    string
	Branch     string
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// SaveSession upserts the session record.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, plan_ref, repo_url, branch, created_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan_ref = excluded.plan_ref,
			repo_url = excluded.repo_url,
			branch = excluded.branch,
			released_at = excluded.released_at
	`, rec.ID, rec.PlanRef, rec.RepoURL, rec.Branch, rec.CreatedAt, rec.ReleasedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

// LookupSession returns the most recent unreleased session for planRef, or
// ErrNotFound.
func (s *Store) LookupSession(ctx context.Context, planRef string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_ref, repo_url, branch, created_at, released_at
		FROM sessions
		WHERE plan_ref = ? AND released_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, planRef).Scan(&rec.ID, &rec.PlanRef, &rec.RepoURL, &rec.Branch, &rec.CreatedAt, &rec.ReleasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("lookup session for %s: %w", planRef, err)
	}
	return rec, nil
}

// MarkReleased stamps the session's release time.
func (s *Store) MarkReleased(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET released_at = ? WHERE id = ? AND released_at IS NULL
	`, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("mark session %s released: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Package store is the SQLite implementation of the crm collaborator
// interfaces. The schema is a fixture for running and testing the agent
// core, not a product surface.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aatumaykin/tradiecrm/internal/crm"
)

// Store wraps a single-connection SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Compile-time interface checks.
var (
	_ crm.ContextSource = (*Store)(nil)
	_ crm.Deals         = (*Store)(nil)
	_ crm.Jobs          = (*Store)(nil)
	_ crm.Contacts      = (*Store)(nil)
	_ crm.Activities    = (*Store)(nil)
	_ crm.Support       = (*Store)(nil)
	_ crm.Preferences   = (*Store)(nil)
	_ crm.Messenger     = (*Store)(nil)
)

// New opens the database at path and applies pragmas.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AutoMigrate creates every table the store uses.
func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			exclusion_criteria TEXT NOT NULL DEFAULT '',
			settings_json TEXT NOT NULL DEFAULT '{}',
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS business_profiles (
			workspace_id TEXT PRIMARY KEY,
			trade_type TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			base_suburb TEXT NOT NULL DEFAULT '',
			service_radius_km INTEGER NOT NULL DEFAULT 0,
			standard_work_hours TEXT NOT NULL DEFAULT '',
			emergency_service INTEGER NOT NULL DEFAULT 0,
			emergency_surcharge REAL NOT NULL DEFAULT 0,
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS members (
			workspace_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			PRIMARY KEY(workspace_id, user_id),
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_members_email ON members(workspace_id, email);`,
		`CREATE TABLE IF NOT EXISTS repair_items (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_rules (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			category TEXT NOT NULL,
			rule_content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			created_at_unix INTEGER NOT NULL,
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS deals (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			contact_id TEXT,
			title TEXT NOT NULL,
			stage TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			address TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			scheduled_at_unix INTEGER,
			flags_json TEXT NOT NULL DEFAULT '[]',
			invoiced REAL NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			FOREIGN KEY(workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE,
			FOREIGN KEY(contact_id) REFERENCES contacts(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deals_schedule ON deals(workspace_id, scheduled_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(workspace_id, stage, updated_at_unix DESC);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			contact_id TEXT,
			deal_id TEXT,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_at_unix INTEGER NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			notes_json TEXT NOT NULL DEFAULT '[]',
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			contact_id TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nowUnix() int64 {
	return s.now().UTC().Unix()
}

func newID() string {
	return uuid.NewString()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, crm.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func likePattern(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + q + "%"
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func unixOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

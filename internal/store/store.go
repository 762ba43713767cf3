// Package store persists import configurations in a SQLite database using
// database/sql. Configurations are stored as JSON documents keyed by id;
// the document is the source of truth and the table only adds the columns
// needed for listing without decoding every row.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"importkit/internal/config"
)

// ErrNotFound is returned when no configuration has the requested id.
var ErrNotFound = errors.New("store: configuration not found")

const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS import_configurations (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    active     INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    document   TEXT NOT NULL
);
`

// Store is a SQLite-backed configuration repository.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at dsn and ensures the
// schema exists. DSN is passed directly to database/sql; for example:
//
//	"file:importkit.db?cache=shared"
//	"importkit.db"
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, bootstrapDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or replaces a configuration. UpdatedAt is stamped here so
// the listing column and the document always agree.
func (s *Store) Save(ctx context.Context, c *config.ImportConfiguration) error {
	if c.ID == "" {
		return fmt.Errorf("store: configuration has no id")
	}
	c.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: encode configuration %s: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO import_configurations (id, name, active, updated_at, document)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    active = excluded.active,
    updated_at = excluded.updated_at,
    document = excluded.document`,
		c.ID, c.Name, boolInt(c.Active), c.UpdatedAt.Format(time.RFC3339Nano), string(doc))
	if err != nil {
		return fmt.Errorf("store: save configuration %s: %w", c.ID, err)
	}
	return nil
}

// Load fetches and decodes a configuration by id.
func (s *Store) Load(ctx context.Context, id string) (*config.ImportConfiguration, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM import_configurations WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	var c config.ImportConfiguration
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("store: decode configuration %s: %w", id, err)
	}
	return &c, nil
}

// ListEntry is a decoded listing row; the full document stays on disk.
type ListEntry struct {
	ID        string
	Name      string
	Active    bool
	UpdatedAt time.Time
}

// List returns all stored configurations, most recently updated first.
func (s *Store) List(ctx context.Context) ([]ListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, active, updated_at
FROM import_configurations
ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []ListEntry
	for rows.Next() {
		var e ListEntry
		var active int
		var updated string
		if err := rows.Scan(&e.ID, &e.Name, &active, &updated); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		e.Active = active != 0
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			e.UpdatedAt = ts
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return out, nil
}

// Delete removes a configuration by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM import_configurations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: delete %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

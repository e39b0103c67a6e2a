package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"carbonq/pkg/domain"

	_ "modernc.org/sqlite"
)

// SQLiteOutbox persists the queue in a single local SQLite file so it
// survives process restarts. All operations are serialized through one
// mutex; the pipeline has a single logical writer anyway.
type SQLiteOutbox struct {
	mu         sync.Mutex
	db         *sql.DB
	maxEntries int
}

// SQLiteOptions tunes the outbox.
type SQLiteOptions struct {
	// MaxEntries caps queue growth; 0 means DefaultMaxEntries.
	MaxEntries int
}

// NewSQLiteOutbox opens (creating if needed) the outbox database at path.
func NewSQLiteOutbox(path string, opts SQLiteOptions) (*SQLiteOutbox, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("outbox path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create outbox dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	o := &SQLiteOutbox{db: db, maxEntries: maxEntries}
	if err := o.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *SQLiteOutbox) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS outbox_entries (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL,
  platform TEXT NOT NULL,
  carbon_grams REAL NOT NULL,
  occurred_at TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := o.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create outbox table: %w", err)
	}
	return nil
}

// Enqueue appends the event and trims the oldest entries beyond the cap.
func (o *SQLiteOutbox) Enqueue(ctx context.Context, event domain.QueryEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO outbox_entries (event_id, platform, carbon_grams, occurred_at)
VALUES (?, ?, ?, ?);
`, event.ID, string(event.Platform), event.CarbonGrams, event.OccurredAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM outbox_entries
WHERE seq NOT IN (SELECT seq FROM outbox_entries ORDER BY seq DESC LIMIT ?);
`, o.maxEntries); err != nil {
		return fmt.Errorf("trim outbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// PeekAll returns all entries in FIFO order without removing them.
func (o *SQLiteOutbox) PeekAll(ctx context.Context) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rows, err := o.db.QueryContext(ctx, `
SELECT seq, event_id, platform, carbon_grams, occurred_at, attempts
FROM outbox_entries ORDER BY seq ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			platformID string
			occurredAt string
		)
		if err := rows.Scan(&entry.Seq, &entry.Event.ID, &platformID, &entry.Event.CarbonGrams, &occurredAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.Event.Platform = domain.Platform(platformID)
		ts, err := time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse outbox timestamp: %w", err)
		}
		entry.Event.OccurredAt = ts
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// ReplaceAll rewrites the snapshotted prefix (seq <= upTo) with retained,
// keeping the original sequence positions so FIFO order survives. Entries
// enqueued after the snapshot are untouched.
func (o *SQLiteOutbox) ReplaceAll(ctx context.Context, upTo int64, retained []Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_entries WHERE seq <= ?;`, upTo); err != nil {
		return fmt.Errorf("clear outbox prefix: %w", err)
	}
	for _, entry := range retained {
		if entry.Seq > upTo {
			return fmt.Errorf("retained entry %d is outside the snapshot", entry.Seq)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO outbox_entries (seq, event_id, platform, carbon_grams, occurred_at, attempts)
VALUES (?, ?, ?, ?, ?, ?);
`, entry.Seq, entry.Event.ID, string(entry.Event.Platform), entry.Event.CarbonGrams,
			entry.Event.OccurredAt.UTC().Format(time.RFC3339Nano), entry.Attempts); err != nil {
			return fmt.Errorf("restore outbox entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Len reports the number of queued entries.
func (o *SQLiteOutbox) Len(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var count int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_entries;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (o *SQLiteOutbox) Close() error {
	return o.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazz-dev/watchdog/internal/urlutil"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS targets (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    url         TEXT    NOT NULL UNIQUE,
    created_at  TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    target_id   TEXT    NOT NULL REFERENCES targets(id),
    checked_at  TEXT    NOT NULL,
    success     INTEGER NOT NULL CHECK(success IN (0, 1)),
    status_code INTEGER,
    elapsed_ms  REAL,
    error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_results_target_checked ON results(target_id, checked_at);
`

// timeLayout is fixed width so that stored timestamps sort lexically in
// time order. Values are always formatted in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older builds.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

// SQLite is a Store backed by a single SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	// One connection serializes concurrent appends from the probe fan-out and
	// keeps ":memory:" databases shared across callers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertTarget implements Store.
func (s *SQLite) UpsertTarget(ctx context.Context, rawURL string) (Target, bool, error) {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return Target{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Target{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t := Target{ID: uuid.NewString(), URL: u, CreatedAt: time.Now().UTC()}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO targets (id, url, created_at) VALUES (?, ?, ?) ON CONFLICT(url) DO NOTHING`,
		t.ID, t.URL, formatTime(t.CreatedAt),
	)
	if err != nil {
		return Target{}, false, fmt.Errorf("inserting target %q: %w", u, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Target{}, false, fmt.Errorf("inserting target %q: %w", u, err)
	}
	created := n > 0

	if !created {
		existing, err := scanTarget(tx.QueryRowContext(ctx,
			`SELECT id, url, created_at FROM targets WHERE url = ?`, u,
		))
		if err != nil {
			return Target{}, false, fmt.Errorf("loading existing target %q: %w", u, err)
		}
		t = *existing
	}

	if err := tx.Commit(); err != nil {
		return Target{}, false, fmt.Errorf("committing target %q: %w", u, err)
	}
	return t, created, nil
}

// ListTargets implements Store.
func (s *SQLite) ListTargets(ctx context.Context) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, created_at FROM targets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target row: %w", err)
		}
		targets = append(targets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating target rows: %w", err)
	}
	return targets, nil
}

// GetTarget implements Store.
func (s *SQLite) GetTarget(ctx context.Context, id string) (Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx,
		`SELECT id, url, created_at FROM targets WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("querying target %q: %w", id, err)
	}
	return *t, nil
}

// AppendResult implements Store.
func (s *SQLite) AppendResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (target_id, checked_at, success, status_code, elapsed_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
		r.TargetID,
		formatTime(r.CheckedAt),
		r.Success,
		r.StatusCode,
		r.ElapsedMs,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting result for %q: %w", r.TargetID, err)
	}
	return nil
}

// ResultsSince implements Store.
func (s *SQLite) ResultsSince(ctx context.Context, targetID string, since time.Time) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, checked_at, success, status_code, elapsed_ms, error
		 FROM results WHERE target_id = ? AND checked_at >= ? ORDER BY checked_at, id`,
		targetID, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("querying results for %q: %w", targetID, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			checkedAt  string
			statusCode sql.NullInt64
			elapsedMs  sql.NullFloat64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TargetID, &checkedAt, &r.Success, &statusCode, &elapsedMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		if r.CheckedAt, err = parseTime(checkedAt); err != nil {
			return nil, err
		}
		if statusCode.Valid {
			code := int(statusCode.Int64)
			r.StatusCode = &code
		}
		if elapsedMs.Valid {
			r.ElapsedMs = &elapsedMs.Float64
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (*Target, error) {
	var t Target
	var createdAt string
	if err := row.Scan(&t.ID, &t.URL, &createdAt); err != nil {
		return nil, err
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = ts
	return &t, nil
}

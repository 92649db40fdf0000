package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazz-dev/watchdog/internal/urlutil"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Postgres is a Store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, which must be a postgres:// or postgresql://
// URL, and migrates the schema to the latest version.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	if err := migratePostgres(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func migratePostgres(dsn string) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites the scheme to the one the migrate pgx/v5 driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// UpsertTarget implements Store.
func (p *Postgres) UpsertTarget(ctx context.Context, rawURL string) (Target, bool, error) {
	u, err := urlutil.Normalize(rawURL)
	if err != nil {
		return Target{}, false, err
	}

	t := Target{ID: uuid.NewString(), URL: u, CreatedAt: time.Now().UTC()}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO targets (id, url, created_at) VALUES ($1, $2, $3) ON CONFLICT (url) DO NOTHING`,
		t.ID, t.URL, t.CreatedAt,
	)
	if err != nil {
		return Target{}, false, fmt.Errorf("inserting target %q: %w", u, err)
	}
	if tag.RowsAffected() > 0 {
		return t, true, nil
	}

	existing, err := p.scanTarget(p.pool.QueryRow(ctx,
		`SELECT id, url, created_at FROM targets WHERE url = $1`, u,
	))
	if err != nil {
		return Target{}, false, fmt.Errorf("loading existing target %q: %w", u, err)
	}
	return existing, false, nil
}

// ListTargets implements Store.
func (p *Postgres) ListTargets(ctx context.Context) ([]Target, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, url, created_at FROM targets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, err := p.scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target row: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating target rows: %w", err)
	}
	return targets, nil
}

// GetTarget implements Store.
func (p *Postgres) GetTarget(ctx context.Context, id string) (Target, error) {
	t, err := p.scanTarget(p.pool.QueryRow(ctx,
		`SELECT id, url, created_at FROM targets WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Target{}, ErrNotFound
	}
	if err != nil {
		return Target{}, fmt.Errorf("querying target %q: %w", id, err)
	}
	return t, nil
}

// AppendResult implements Store.
func (p *Postgres) AppendResult(ctx context.Context, r Result) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO results (target_id, checked_at, success, status_code, elapsed_ms, error) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.TargetID, r.CheckedAt.UTC(), r.Success, r.StatusCode, r.ElapsedMs, r.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting result for %q: %w", r.TargetID, err)
	}
	return nil
}

// ResultsSince implements Store.
func (p *Postgres) ResultsSince(ctx context.Context, targetID string, since time.Time) ([]Result, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, target_id, checked_at, success, status_code, elapsed_ms, error
		 FROM results WHERE target_id = $1 AND checked_at >= $2 ORDER BY checked_at, id`,
		targetID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying results for %q: %w", targetID, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.TargetID, &r.CheckedAt, &r.Success, &r.StatusCode, &r.ElapsedMs, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		r.CheckedAt = r.CheckedAt.UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return results, nil
}

func (p *Postgres) scanTarget(row pgx.Row) (Target, error) {
	var t Target
	if err := row.Scan(&t.ID, &t.URL, &t.CreatedAt); err != nil {
		return Target{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

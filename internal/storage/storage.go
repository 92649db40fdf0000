// Package storage persists monitored targets and the append-only log of
// probe results. Two backends are provided: SQLite (the default, single
// file) and PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested target does not exist.
var ErrNotFound = errors.New("not found")

// Target is a monitored URL. Targets are never mutated or deleted.
type Target struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one recorded probe outcome.
//
// A successful result carries StatusCode and ElapsedMs; a failed one carries
// Error and neither of the others.
type Result struct {
	ID         int64     `json:"id"`
	TargetID   string    `json:"target_id"`
	CheckedAt  time.Time `json:"checked_at"`
	Success    bool      `json:"success"`
	StatusCode *int      `json:"status_code"`
	ElapsedMs  *float64  `json:"elapsed_ms"`
	Error      *string   `json:"error"`
}

// Store is implemented by every backend.
type Store interface {
	// UpsertTarget registers rawURL, or returns the existing target with the
	// same normalized URL. created reports whether a new target was made.
	UpsertTarget(ctx context.Context, rawURL string) (t Target, created bool, err error)
	// ListTargets returns all targets in registration order.
	ListTargets(ctx context.Context) ([]Target, error)
	// GetTarget returns ErrNotFound for an unknown id.
	GetTarget(ctx context.Context, id string) (Target, error)

	// AppendResult writes one result. Safe for concurrent use.
	AppendResult(ctx context.Context, r Result) error
	// ResultsSince returns a target's results with CheckedAt >= since,
	// oldest first.
	ResultsSince(ctx context.Context, targetID string, since time.Time) ([]Result, error)

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite database file
	DSN    string // postgres connection URL
}

// Open opens the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return OpenSQLite(opts.Path)
	case "postgres":
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

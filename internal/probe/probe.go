package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazz-dev/watchdog/internal/storage"
)

// maxDrain bounds how much of a response body is read so the connection can
// be reused.
const maxDrain = 64 << 10

// Appender is the store operation the executor needs.
type Appender interface {
	AppendResult(ctx context.Context, r storage.Result) error
}

// Executor probes one target per Run call and records the outcome.
type Executor struct {
	client    *http.Client
	store     Appender
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithUserAgent sets the User-Agent header sent with every probe.
func WithUserAgent(ua string) Option {
	return func(e *Executor) { e.userAgent = ua }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor. timeout bounds each request; it is applied
// as a context deadline on top of the client's own timeout. Pass nil logger
// to use the default logger.
func NewExecutor(client *http.Client, store Appender, timeout time.Duration, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		client:  client,
		store:   store,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run probes target, writes exactly one result, and returns the outcome.
// Probe failures are part of the outcome; the error is non-nil only when the
// result could not be written.
func (e *Executor) Run(ctx context.Context, target storage.Target) (Outcome, error) {
	checkedAt := e.now()
	outcome := e.Probe(ctx, target.URL)

	switch o := outcome.(type) {
	case Success:
		e.logger.Debug("probe result",
			"url", target.URL,
			"status", o.StatusCode,
			"elapsed", o.Elapsed,
		)
	case Failure:
		e.logger.Info("probe failed", "url", target.URL, "error", o.Reason)
	}

	if err := e.store.AppendResult(ctx, outcome.Result(target.ID, checkedAt)); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Probe issues one GET to url and classifies the response. It never panics
// on a bad target and never returns an error: every failure mode becomes a
// Failure.
func (e *Executor) Probe(ctx context.Context, url string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failure("probe panicked: %v", r)
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure("creating request: %v", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return failure("%v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return failure("unexpected status code: %d", resp.StatusCode)
	}
	return Success{StatusCode: resp.StatusCode, Elapsed: elapsed}
}

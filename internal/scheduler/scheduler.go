package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/watchdog/internal/probe"
	"github.com/hazz-dev/watchdog/internal/storage"
)

// Registry lists the targets to probe on each tick.
type Registry interface {
	ListTargets(ctx context.Context) ([]storage.Target, error)
}

// Prober probes one target and records the result. The error is reserved
// for store failures; probe failures are part of the Outcome.
type Prober interface {
	Run(ctx context.Context, target storage.Target) (probe.Outcome, error)
}

// Report summarizes one tick.
type Report struct {
	Started     time.Time
	Duration    time.Duration
	Targets     int
	Succeeded   int
	Failed      int
	StoreErrors int
	// Err is set when the registry could not be read and the tick was skipped.
	Err error
}

// Scheduler probes every registered target once per tick, all targets
// concurrently, then sleeps for a fixed interval before the next tick.
type Scheduler struct {
	interval time.Duration
	registry Registry
	prober   Prober
	onTick   func(Report)
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a new Scheduler. Pass nil logger to use the default logger.
func New(interval time.Duration, registry Registry, prober Prober, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		registry: registry,
		prober:   prober,
		logger:   logger,
	}
}

// SetOnTick sets the callback invoked after each scheduled tick completes.
func (s *Scheduler) SetOnTick(fn func(Report)) {
	s.onTick = fn
}

// Start launches the scheduling loop. It is non-blocking. The first tick
// runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait blocks until the loop has exited. A tick in flight when ctx is
// cancelled runs to completion first; each probe is bounded by its own
// timeout.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		report := s.Tick(ctx)
		if s.onTick != nil {
			s.onTick(report)
		}

		// Fixed delay: the next tick starts interval after this one ended.
		timer.Reset(s.interval)
	}
}

// Tick probes a snapshot of the registry and returns once every probe has
// settled. Targets registered after the snapshot wait for the next tick.
func (s *Scheduler) Tick(ctx context.Context) Report {
	report := Report{Started: time.Now()}

	targets, err := s.registry.ListTargets(ctx)
	if err != nil {
		report.Err = fmt.Errorf("listing targets: %w", err)
		report.Duration = time.Since(report.Started)
		s.logger.Error("skipping tick", "error", report.Err)
		return report
	}
	report.Targets = len(targets)

	// Shutdown must not abort probes already launched.
	probeCtx := context.WithoutCancel(ctx)

	var succeeded, failed, storeErrors atomic.Int32
	var g errgroup.Group
	for _, t := range targets {
		t := t
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					s.logger.Error("probe panicked", "url", t.URL, "panic", r)
				}
			}()

			outcome, err := s.prober.Run(probeCtx, t)
			if _, ok := outcome.(probe.Success); ok {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			if err != nil {
				storeErrors.Add(1)
				s.logger.Error("storing probe result", "url", t.URL, "error", err)
			}
			// Errors stay per target.
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	report.Succeeded = int(succeeded.Load())
	report.Failed = int(failed.Load())
	report.StoreErrors = int(storeErrors.Load())
	report.Duration = time.Since(report.Started)

	s.logger.Info("tick complete",
		"targets", report.Targets,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"store_errors", report.StoreErrors,
		"duration", report.Duration,
	)
	return report
}

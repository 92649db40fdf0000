package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"text/tabwriter"

	"github.com/hazz-dev/watchdog/internal/probe"
	"github.com/hazz-dev/watchdog/internal/scheduler"
	"github.com/hazz-dev/watchdog/internal/storage"
)

type checkRow struct {
	target  storage.Target
	outcome probe.Outcome
}

// recordingProber remembers the outcome of every probe it forwards.
type recordingProber struct {
	next scheduler.Prober

	mu   sync.Mutex
	rows []checkRow
}

func (p *recordingProber) Run(ctx context.Context, t storage.Target) (probe.Outcome, error) {
	outcome, err := p.next.Run(ctx, t)
	p.mu.Lock()
	p.rows = append(p.rows, checkRow{target: t, outcome: outcome})
	p.mu.Unlock()
	return outcome, err
}

// executeCheck runs exactly one tick and prints its outcomes. It fails when
// any target failed or any result could not be stored.
func executeCheck(ctx context.Context, out io.Writer, registry scheduler.Registry, prober scheduler.Prober, logger *slog.Logger) error {
	rec := &recordingProber{next: prober}
	report := scheduler.New(0, registry, rec, logger).Tick(ctx)
	if report.Err != nil {
		return report.Err
	}

	if report.Targets == 0 {
		fmt.Fprintln(out, "No targets registered. Run 'watchdog add <url>' or list them under 'targets' in the config file.")
		return nil
	}

	sort.Slice(rec.rows, func(i, j int) bool {
		return rec.rows[i].target.URL < rec.rows[j].target.URL
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tRESULT\tSTATUS\tLATENCY\tERROR")
	for _, r := range rec.rows {
		switch o := r.outcome.(type) {
		case probe.Success:
			fmt.Fprintf(w, "%s\tok\t%d\t%.1fms\t\n", r.target.URL, o.StatusCode, o.ElapsedMs())
		case probe.Failure:
			fmt.Fprintf(w, "%s\tfail\t-\t-\t%s\n", r.target.URL, o.Reason)
		default:
			fmt.Fprintf(w, "%s\tfail\t-\t-\tno outcome\n", r.target.URL)
		}
	}
	w.Flush()

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", report.Failed, report.Targets)
	}
	if report.StoreErrors > 0 {
		return fmt.Errorf("%d results could not be stored", report.StoreErrors)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/watchdog/internal/status"
)

type snapshotter interface {
	Snapshots(ctx context.Context) ([]status.Snapshot, error)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func executeStatus(cmd *cobra.Command, agg snapshotter, ranked bool) error {
	out := cmd.OutOrStdout()
	snaps, err := agg.Snapshots(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("computing status: %w", err)
	}

	if len(snaps) == 0 {
		fmt.Fprintln(out, "No targets registered. Run 'watchdog add <url>' first.")
		return nil
	}
	if ranked {
		snaps = status.Ranked(snaps)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tUPTIME 24H\tUPTIME 7D\tP95\tSAMPLES\tSCORE\tGRADE")
	for _, s := range snaps {
		d := s.Display()
		p95 := "-"
		if d.P95Ms24h != nil {
			p95 = fmt.Sprintf("%.1fms", *d.P95Ms24h)
		}
		fmt.Fprintf(w, "%s\t%.1f%%\t%.1f%%\t%s\t%d\t%.1f\t%s\n",
			d.URL,
			d.Uptime24h,
			d.Uptime7d,
			p95,
			d.Samples24h,
			d.Score,
			d.Grade,
		)
	}
	w.Flush()
	return nil
}

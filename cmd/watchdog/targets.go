package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/watchdog/internal/storage"
)

type targetStore interface {
	targetUpserter
	ListTargets(ctx context.Context) ([]storage.Target, error)
}

func executeAdd(cmd *cobra.Command, store targetUpserter, urls []string) error {
	ctx := commandContext(cmd)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	for _, raw := range urls {
		t, created, err := store.UpsertTarget(ctx, raw)
		if err != nil {
			return fmt.Errorf("adding %q: %w", raw, err)
		}
		state := "exists"
		if created {
			state = "added"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", state, t.ID, t.URL)
	}
	return nil
}

func executeTargets(cmd *cobra.Command, store targetStore) error {
	out := cmd.OutOrStdout()
	targets, err := store.ListTargets(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("listing targets: %w", err)
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No targets registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tURL\tREGISTERED")
	for _, t := range targets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.URL, t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/watchdog/internal/stats"
	"github.com/hazz-dev/watchdog/internal/status"
)

type mockSnapshotter struct {
	snaps []status.Snapshot
	err   error
}

func (m *mockSnapshotter) Snapshots(_ context.Context) ([]status.Snapshot, error) {
	return m.snaps, m.err
}

func runStatusCmd(t *testing.T, agg snapshotter, ranked bool) (string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := executeStatus(cmd, agg, ranked)
	return buf.String(), err
}

func TestExecuteStatus_NoTargets(t *testing.T) {
	output, err := runStatusCmd(t, &mockSnapshotter{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "No targets registered") {
		t.Errorf("expected hint, got:\n%s", output)
	}
}

func TestExecuteStatus_Table(t *testing.T) {
	p95 := 123.456
	agg := &mockSnapshotter{snaps: []status.Snapshot{
		{URL: "https://slow.example", Uptime24h: 50, Uptime7d: 60, Grade: stats.GradeF, Score: 35},
		{URL: "https://fast.example", Uptime24h: 99.96, Uptime7d: 99.5, P95Ms24h: &p95, Samples24h: 1440, Score: 99.97, Grade: stats.GradeAPlus},
	}}

	output, err := runStatusCmd(t, agg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"GRADE", "100.0%", "123.5ms", "1440", "A+", "-"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
	if strings.Index(output, "slow.example") > strings.Index(output, "fast.example") {
		t.Error("unranked output should keep registration order")
	}
}

func TestExecuteStatus_Ranked(t *testing.T) {
	agg := &mockSnapshotter{snaps: []status.Snapshot{
		{URL: "https://slow.example", Score: 35, Grade: stats.GradeF},
		{URL: "https://fast.example", Score: 99, Grade: stats.GradeAPlus},
	}}

	output, err := runStatusCmd(t, agg, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Index(output, "fast.example") > strings.Index(output, "slow.example") {
		t.Errorf("ranked output should list best score first, got:\n%s", output)
	}
}

func TestExecuteStatus_Error(t *testing.T) {
	if _, err := runStatusCmd(t, &mockSnapshotter{err: errors.New("db down")}, false); err == nil {
		t.Fatal("expected error")
	}
}

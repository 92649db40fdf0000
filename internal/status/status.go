// Package status folds stored probe results into per-target snapshots:
// windowed uptime, 24h p95 latency, sample count, score and grade.
package status

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hazz-dev/watchdog/internal/stats"
	"github.com/hazz-dev/watchdog/internal/storage"
)

const (
	Window24h = 24 * time.Hour
	Window7d  = 7 * 24 * time.Hour
)

// Store is the subset of storage.Store the aggregator reads.
type Store interface {
	ListTargets(ctx context.Context) ([]storage.Target, error)
	ResultsSince(ctx context.Context, targetID string, since time.Time) ([]storage.Result, error)
}

// Snapshot is the derived view of one target. Values are unrounded;
// use Display for presentation.
type Snapshot struct {
	TargetID   string      `json:"target_id"`
	URL        string      `json:"url"`
	Uptime24h  float64     `json:"uptime_24h"`
	Uptime7d   float64     `json:"uptime_7d"`
	P95Ms24h   *float64    `json:"p95_ms_24h"`
	Samples24h int         `json:"samples_24h"`
	Score      float64     `json:"score"`
	Grade      stats.Grade `json:"grade"`
}

// Display returns a copy with percentages, latency and score rounded to
// one decimal place.
func (s Snapshot) Display() Snapshot {
	out := s
	out.Uptime24h = round1(s.Uptime24h)
	out.Uptime7d = round1(s.Uptime7d)
	out.Score = round1(s.Score)
	if s.P95Ms24h != nil {
		v := round1(*s.P95Ms24h)
		out.P95Ms24h = &v
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Aggregator computes snapshots from the result store.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// NewAggregator creates an Aggregator. now defaults to time.Now when nil.
func NewAggregator(store Store, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

// Snapshot computes the snapshot of a single target.
func (a *Aggregator) Snapshot(ctx context.Context, target storage.Target) (Snapshot, error) {
	now := a.now()

	day, err := a.store.ResultsSince(ctx, target.ID, now.Add(-Window24h))
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading 24h results for %s: %w", target.URL, err)
	}
	week, err := a.store.ResultsSince(ctx, target.ID, now.Add(-Window7d))
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading 7d results for %s: %w", target.URL, err)
	}

	ok24h, latencies := 0, make([]float64, 0, len(day))
	for _, r := range day {
		if !r.Success {
			continue
		}
		ok24h++
		if r.ElapsedMs != nil {
			latencies = append(latencies, *r.ElapsedMs)
		}
	}

	snap := Snapshot{
		TargetID:   target.ID,
		URL:        target.URL,
		Uptime24h:  uptime(ok24h, len(day)),
		Uptime7d:   uptime(successes(week), len(week)),
		Samples24h: len(day),
	}
	if p95, ok := stats.Percentile(latencies, 95); ok {
		snap.P95Ms24h = &p95
	}
	snap.Score, snap.Grade = stats.Score(snap.Uptime24h, snap.P95Ms24h)
	return snap, nil
}

// Snapshots computes a snapshot for every registered target, in
// registration order.
func (a *Aggregator) Snapshots(ctx context.Context) ([]Snapshot, error) {
	targets, err := a.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	snaps := make([]Snapshot, 0, len(targets))
	for _, t := range targets {
		s, err := a.Snapshot(ctx, t)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// Ranked returns a copy of snaps ordered by score descending, ties broken
// by URL.
func Ranked(snaps []Snapshot) []Snapshot {
	out := append([]Snapshot(nil), snaps...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func uptime(ok, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(ok) / float64(total)
}

func successes(results []storage.Result) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hazz-dev/watchdog/internal/storage"
	"github.com/hazz-dev/watchdog/internal/urlutil"
)

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIsIdempotent(t, open(t)) })
	t.Run("UpsertNormalizes", func(t *testing.T) { testUpsertNormalizes(t, open(t)) })
	t.Run("UpsertRejectsInvalid", func(t *testing.T) { testUpsertRejectsInvalid(t, open(t)) })
	t.Run("ListInRegistrationOrder", func(t *testing.T) { testListInRegistrationOrder(t, open(t)) })
	t.Run("GetTarget", func(t *testing.T) { testGetTarget(t, open(t)) })
	t.Run("AppendAndQuery", func(t *testing.T) { testAppendAndQuery(t, open(t)) })
	t.Run("QueryWindow", func(t *testing.T) { testQueryWindow(t, open(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, open(t)) })
}

func mustUpsert(t *testing.T, s storage.Store, url string) storage.Target {
	t.Helper()
	tgt, _, err := s.UpsertTarget(context.Background(), url)
	if err != nil {
		t.Fatalf("UpsertTarget(%q): %v", url, err)
	}
	return tgt
}

func successResult(targetID string, at time.Time, code int, elapsed float64) storage.Result {
	return storage.Result{
		TargetID:   targetID,
		CheckedAt:  at,
		Success:    true,
		StatusCode: &code,
		ElapsedMs:  &elapsed,
	}
}

func failureResult(targetID string, at time.Time, msg string) storage.Result {
	return storage.Result{
		TargetID:  targetID,
		CheckedAt: at,
		Error:     &msg,
	}
}

func testUpsertIsIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()

	first, created, err := s.UpsertTarget(ctx, "https://example.com/health")
	if err != nil {
		t.Fatalf("first UpsertTarget: %v", err)
	}
	if !created {
		t.Error("expected created=true on first registration")
	}
	if first.ID == "" {
		t.Error("expected a non-empty id")
	}

	second, created, err := s.UpsertTarget(ctx, "https://example.com/health")
	if err != nil {
		t.Fatalf("second UpsertTarget: %v", err)
	}
	if created {
		t.Error("expected created=false on repeat registration")
	}
	if second.ID != first.ID {
		t.Errorf("expected same id %q, got %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", first.CreatedAt, second.CreatedAt)
	}

	all, err := s.ListTargets(ctx)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 target, got %d", len(all))
	}
}

func testUpsertNormalizes(t *testing.T, s storage.Store) {
	a := mustUpsert(t, s, "HTTPS://Example.com:443/status#top")
	b := mustUpsert(t, s, "https://example.com/status")
	if a.ID != b.ID {
		t.Errorf("expected equivalent urls to share an id, got %q and %q", a.ID, b.ID)
	}
	if a.URL != "https://example.com/status" {
		t.Errorf("expected normalized url, got %q", a.URL)
	}
}

func testUpsertRejectsInvalid(t *testing.T, s storage.Store) {
	_, _, err := s.UpsertTarget(context.Background(), "not a url")
	if !errors.Is(err, urlutil.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func testListInRegistrationOrder(t *testing.T, s storage.Store) {
	urls := []string{"https://c.example.com", "https://a.example.com", "https://b.example.com"}
	for _, u := range urls {
		mustUpsert(t, s, u)
	}
	mustUpsert(t, s, urls[0])

	all, err := s.ListTargets(context.Background())
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(all) != len(urls) {
		t.Fatalf("expected %d targets, got %d", len(urls), len(all))
	}
	for i, u := range urls {
		if all[i].URL != u {
			t.Errorf("position %d: expected %q, got %q", i, u, all[i].URL)
		}
	}
}

func testGetTarget(t *testing.T, s storage.Store) {
	ctx := context.Background()
	want := mustUpsert(t, s, "https://example.com")

	got, err := s.GetTarget(ctx, want.ID)
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if got.URL != want.URL {
		t.Errorf("expected url %q, got %q", want.URL, got.URL)
	}

	if _, err := s.GetTarget(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func testAppendAndQuery(t *testing.T, s storage.Store) {
	ctx := context.Background()
	tgt := mustUpsert(t, s, "https://example.com")
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.AppendResult(ctx, successResult(tgt.ID, now.Add(-2*time.Minute), 200, 123.5)); err != nil {
		t.Fatalf("AppendResult success: %v", err)
	}
	if err := s.AppendResult(ctx, failureResult(tgt.ID, now.Add(-time.Minute), "connection refused")); err != nil {
		t.Fatalf("AppendResult failure: %v", err)
	}

	results, err := s.ResultsSince(ctx, tgt.ID, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ResultsSince: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	ok := results[0]
	if !ok.Success || ok.StatusCode == nil || *ok.StatusCode != 200 || ok.ElapsedMs == nil || *ok.ElapsedMs != 123.5 {
		t.Errorf("unexpected success row: %+v", ok)
	}
	if ok.Error != nil {
		t.Errorf("expected no error on success row, got %q", *ok.Error)
	}
	if !ok.CheckedAt.Equal(now.Add(-2 * time.Minute)) {
		t.Errorf("expected checked_at %v, got %v", now.Add(-2*time.Minute), ok.CheckedAt)
	}

	bad := results[1]
	if bad.Success || bad.StatusCode != nil || bad.ElapsedMs != nil {
		t.Errorf("unexpected failure row: %+v", bad)
	}
	if bad.Error == nil || *bad.Error != "connection refused" {
		t.Errorf("expected error message, got %v", bad.Error)
	}
}

func testQueryWindow(t *testing.T, s storage.Store) {
	ctx := context.Background()
	tgt := mustUpsert(t, s, "https://example.com")
	other := mustUpsert(t, s, "https://other.example.com")
	now := time.Now().UTC()

	// Inserted out of order to check the ascending sort.
	for _, age := range []time.Duration{3 * time.Hour, 30 * time.Hour, time.Hour, 200 * time.Hour, 2 * time.Hour} {
		if err := s.AppendResult(ctx, successResult(tgt.ID, now.Add(-age), 200, 10)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendResult(ctx, successResult(other.ID, now, 200, 10)); err != nil {
		t.Fatal(err)
	}

	day, err := s.ResultsSince(ctx, tgt.ID, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ResultsSince 24h: %v", err)
	}
	if len(day) != 3 {
		t.Fatalf("expected 3 results in 24h window, got %d", len(day))
	}
	for i := 1; i < len(day); i++ {
		if day[i].CheckedAt.Before(day[i-1].CheckedAt) {
			t.Errorf("results not ascending at %d: %v before %v", i, day[i].CheckedAt, day[i-1].CheckedAt)
		}
	}

	week, err := s.ResultsSince(ctx, tgt.ID, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ResultsSince 7d: %v", err)
	}
	if len(week) != 4 {
		t.Errorf("expected 4 results in 7d window, got %d", len(week))
	}

	none, err := s.ResultsSince(ctx, "unknown", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ResultsSince unknown: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no results for unknown target, got %d", len(none))
	}
}

func testConcurrentAppends(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers, perWorker = 8, 25

	targets := make([]storage.Target, workers)
	for i := range targets {
		targets[i] = mustUpsert(t, s, fmt.Sprintf("https://host%d.example.com", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(tgt storage.Target) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := s.AppendResult(ctx, successResult(tgt.ID, time.Now(), 200, float64(j))); err != nil {
					errs <- err
				}
			}
		}(targets[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent AppendResult: %v", err)
	}

	for _, tgt := range targets {
		results, err := s.ResultsSince(ctx, tgt.ID, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != perWorker {
			t.Errorf("target %s: expected %d results, got %d", tgt.URL, perWorker, len(results))
		}
	}
}

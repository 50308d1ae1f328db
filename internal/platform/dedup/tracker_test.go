package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	first := Fingerprint("story-1", "covers/1.png", "")
	second := Fingerprint("story-1", "covers/1.png", "a different prompt")
	if first != second {
		t.Fatalf("fingerprint should depend only on story and destination key: %s != %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16 character fingerprint, got %d", len(first))
	}
}

func TestFingerprintDivergesPerDestination(t *testing.T) {
	a := Fingerprint("story-1", "nodes/1.png", "")
	b := Fingerprint("story-1", "nodes/2.png", "")
	if a == b {
		t.Fatalf("different destination keys must never collide, both %s", a)
	}
}

func TestFingerprintPromptFallback(t *testing.T) {
	a := Fingerprint("story-1", "", "a castle at dawn")
	b := Fingerprint("story-1", "", "a castle at dawn")
	c := Fingerprint("story-1", "", "a castle at dusk")
	if a != b {
		t.Fatalf("same prompt must yield same fingerprint: %s != %s", a, b)
	}
	if a == c {
		t.Fatalf("different prompts should diverge, both %s", a)
	}
}

func TestFingerprintTimestampFallbackNeverCollides(t *testing.T) {
	a := Fingerprint("story-1", "", "")
	time.Sleep(time.Millisecond)
	b := Fingerprint("story-1", "", "")
	if a == b {
		t.Fatalf("timestamp fallback should disable dedup, got identical %s", a)
	}
}

func TestAcquireRejectsLiveDuplicate(t *testing.T) {
	tracker := NewTracker()
	fp := Fingerprint("story-2", "covers/2.png", "")

	job, err := tracker.Acquire(fp, "covers/2.png", "story-2")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if !tracker.IsInFlight(fp) {
		t.Fatal("expected fingerprint to be in flight after acquire")
	}

	if _, err := tracker.Acquire(fp, "covers/2.png", "story-2"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	job.Finish(nil)
	tracker.Unregister(fp)
	if tracker.IsInFlight(fp) {
		t.Fatal("fingerprint still in flight after unregister")
	}
}

func TestAcquireReplacesCompletedEntry(t *testing.T) {
	tracker := NewTracker()
	fp := "abcdef0123456789"

	first, err := tracker.Acquire(fp, "k", "s")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	first.Finish(errors.New("boom"))

	// The finished entry was not unregistered, but a new request must still
	// be able to claim the fingerprint.
	second, err := tracker.Acquire(fp, "k", "s")
	if err != nil {
		t.Fatalf("acquire after completion failed: %v", err)
	}
	if second.ID() == first.ID() {
		t.Fatal("expected a fresh job handle")
	}
}

func TestIsInFlightFalseForCompletedJob(t *testing.T) {
	tracker := NewTracker()
	job := NewJob()
	tracker.Register("fp-1", job, "k", "s")

	if !tracker.IsInFlight("fp-1") {
		t.Fatal("expected in flight before completion")
	}
	job.Finish(nil)
	if tracker.IsInFlight("fp-1") {
		t.Fatal("completed job must not count as in flight even before sweep")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	tracker := NewTracker()
	tracker.Unregister("never-registered")
	tracker.Unregister("never-registered")
}

func TestSweepEvictsCompletedAndStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tracker := NewTracker(WithClock(clock))

	finished, _ := tracker.Acquire("fp-done", "k1", "s")
	finished.Finish(nil)

	stuck, _ := tracker.Acquire("fp-stuck", "k2", "s")
	_ = stuck

	fresh, _ := tracker.Acquire("fp-fresh", "k3", "s")
	_ = fresh

	// Age everything past the TTL except the fresh entry.
	now = now.Add(DefaultTTL + time.Second)
	recent, _ := tracker.Acquire("fp-recent", "k4", "s")
	_ = recent

	removed := tracker.Sweep()
	if removed != 3 {
		t.Fatalf("expected 3 evictions (completed + 2 stale), got %d", removed)
	}
	if tracker.IsInFlight("fp-stuck") {
		t.Fatal("stale entry should be force-evicted even though its job never settled")
	}
	if !tracker.IsInFlight("fp-recent") {
		t.Fatal("recent live entry must survive the sweep")
	}
}

func TestAcquireConcurrentSingleWinner(t *testing.T) {
	tracker := NewTracker()
	fp := Fingerprint("story-3", "nodes/busy.png", "")

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	rejected := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.Acquire(fp, "nodes/busy.png", "story-3"); err != nil {
				mu.Lock()
				rejected++
				mu.Unlock()
				return
			}
			mu.Lock()
			winners++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d (rejected %d)", winners, rejected)
	}
	if rejected != attempts-1 {
		t.Fatalf("expected %d rejections, got %d", attempts-1, rejected)
	}
}

func TestJobLifecycle(t *testing.T) {
	job := NewJob()
	if job.Done() {
		t.Fatal("new job must not report done")
	}

	wantErr := errors.New("generation failed")
	job.Finish(wantErr)
	job.Finish(nil) // second call ignored

	if !job.Done() {
		t.Fatal("finished job must report done")
	}
	if !errors.Is(job.Err(), wantErr) {
		t.Fatalf("expected first completion error to stick, got %v", job.Err())
	}
}

func TestJobWaitHonoursContext(t *testing.T) {
	job := NewJob()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := job.Wait(ctx); err == nil {
		t.Fatal("expected context deadline error while job unfinished")
	}

	job.Finish(nil)
	if err := job.Wait(nil); err != nil {
		t.Fatalf("wait after finish should return completion error, got %v", err)
	}
}

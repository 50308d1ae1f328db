// Package dedup suppresses duplicate in-flight generation requests within a
// single process. Requests are fingerprinted, tracked while their dispatched
// job is running, and rejected when an identical request arrives before the
// first one settles. Entries are reclaimed on completion and by a TTL sweep.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long an entry may stay in the table before the sweep
// force-evicts it even if its job never settled. Eviction does not cancel
// the underlying job; it only stops the entry from blocking new requests.
const DefaultTTL = 300 * time.Second

// ErrInFlight is returned by Acquire when a live entry already exists for
// the fingerprint.
var ErrInFlight = errors.New("dedup: identical request already in flight")

// Fingerprint derives the duplicate-suppression key for a request.
//
// A destination key is the most precise signal: per-node generation uses a
// distinct key per node, so those requests never collide. Without one the
// user prompt is used, and with neither the current timestamp makes the
// fingerprint unique, disabling dedup for that call.
func Fingerprint(storyID, destinationKey, userPrompt string) string {
	var key string
	switch {
	case destinationKey != "":
		key = storyID + ":" + destinationKey
	case userPrompt != "":
		key = storyID + ":" + md5Hex([]byte(userPrompt))[:8]
	default:
		key = storyID + ":" + time.Now().Format(time.RFC3339Nano)
	}
	return md5Hex([]byte(key))[:16]
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	job            *Job
	registeredAt   time.Time
	destinationKey string
	storyID        string
}

// Tracker is the mutex-guarded in-flight table. It owns the only mutable
// shared state in the dedup core; all mutation goes through its methods.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// TrackerOption customises tracker construction.
type TrackerOption func(*Tracker)

// WithTTL overrides the stale-entry eviction age.
func WithTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// NewTracker constructs an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Acquire performs sweep, duplicate check, and registration as one critical
// section, eliminating the check-then-act race between concurrent requests
// for the same fingerprint. On success the returned job is registered and
// the caller must ensure Unregister(fp) runs on every exit path of the
// dispatched work. A live duplicate yields ErrInFlight.
func (t *Tracker) Acquire(fp, destinationKey, storyID string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()

	if existing, ok := t.entries[fp]; ok {
		if !existing.job.Done() {
			return nil, fmt.Errorf("%w: fingerprint %s", ErrInFlight, fp)
		}
		// A finished entry the sweep has not reclaimed yet; replace it.
		delete(t.entries, fp)
	}

	job := NewJob()
	t.entries[fp] = entry{
		job:            job,
		registeredAt:   t.now(),
		destinationKey: destinationKey,
		storyID:        storyID,
	}
	return job, nil
}

// IsInFlight reports whether a live entry exists for the fingerprint. An
// entry whose job already finished does not count as in flight even if the
// sweep has not removed it yet.
func (t *Tracker) IsInFlight(fp string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[fp]
	if !ok {
		return false
	}
	return !existing.job.Done()
}

// Register inserts or replaces the entry for the fingerprint. Callers are
// expected to have checked IsInFlight first; a live entry is silently
// replaced, which is only correct for already-completed entries.
func (t *Tracker) Register(fp string, job *Job, destinationKey, storyID string) {
	if job == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[fp] = entry{
		job:            job,
		registeredAt:   t.now(),
		destinationKey: destinationKey,
		storyID:        storyID,
	}
}

// Unregister removes the entry unconditionally. Removing an absent
// fingerprint is a no-op.
func (t *Tracker) Unregister(fp string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, fp)
}

// Sweep removes entries whose job has finished and force-evicts entries
// older than the TTL regardless of job state.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked()
}

// Len returns the current number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) sweepLocked() int {
	now := t.now()
	removed := 0
	for fp, e := range t.entries {
		if e.job.Done() || now.Sub(e.registeredAt) > t.ttl {
			delete(t.entries, fp)
			removed++
		}
	}
	return removed
}

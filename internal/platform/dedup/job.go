package dedup

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Job is an explicit completion handle for a dispatched generation task.
// Completion state is queried without blocking, so the tracker can decide
// whether an entry still guards an in-flight request.
type Job struct {
	id   string
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewJob constructs an unfinished job handle with a fresh identifier.
func NewJob() *Job {
	return &Job{
		id:   ulid.Make().String(),
		done: make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	if j == nil {
		return ""
	}
	return j.id
}

// Finish marks the job complete with the supplied error (nil for success).
// Subsequent calls are no-ops.
func (j *Job) Finish(err error) {
	if j == nil {
		return
	}
	j.once.Do(func() {
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
		close(j.done)
	})
}

// Done reports whether the job has finished, without blocking.
func (j *Job) Done() bool {
	if j == nil {
		return true
	}
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Err returns the completion error. It is only meaningful once Done reports true.
func (j *Job) Err() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Wait blocks until the job finishes or the context is cancelled. On normal
// completion it returns the job's error.
func (j *Job) Wait(ctx context.Context) error {
	if j == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

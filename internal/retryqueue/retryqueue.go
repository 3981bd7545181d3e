// Package retryqueue is a bounded FIFO of services awaiting an automatic
// restart attempt.
package retryqueue

import (
	"errors"
	"time"
)

// DefaultCapacity matches the historical queue bound.
const DefaultCapacity = 100

var ErrQueueFull = errors.New("failed services queue is full")

type Entry struct {
	Name         string    `json:"name"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// Disposition tells Each what to do with the visited entry.
type Disposition int

const (
	Keep Disposition = iota
	Remove
)

// Queue does not deduplicate names: a service enqueued twice occupies two
// slots. Not safe for concurrent use.
type Queue struct {
	capacity int
	entries  []*Entry
	now      func() time.Time
}

// New returns a queue bounded at capacity; non-positive uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

// Enqueue appends name with a failure count of 1. A full queue rejects the
// insert with ErrQueueFull and keeps its existing entries.
func (q *Queue) Enqueue(name string) (Entry, error) {
	if len(q.entries) >= q.capacity {
		return Entry{}, ErrQueueFull
	}
	e := &Entry{Name: name, FailureCount: 1, LastFailure: q.now()}
	q.entries = append(q.entries, e)
	return *e, nil
}

// Each visits entries front to back. fn may update the entry in place and
// decides whether it stays queued. Entries enqueued by fn are not visited.
func (q *Queue) Each(fn func(*Entry) Disposition) {
	n := len(q.entries)
	kept := q.entries[:0:0]
	for i := 0; i < n; i++ {
		e := q.entries[i]
		if fn(e) == Keep {
			kept = append(kept, e)
		}
	}
	q.entries = append(kept, q.entries[n:]...)
}

// MarkFailed bumps the failure counter of e.
func (q *Queue) MarkFailed(e *Entry) {
	e.FailureCount++
	e.LastFailure = q.now()
}

// Entries returns copies of the queued entries, front first.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

func (q *Queue) Size() int { return len(q.entries) }

func (q *Queue) Cap() int { return q.capacity }

func (q *Queue) Reset() { q.entries = nil }

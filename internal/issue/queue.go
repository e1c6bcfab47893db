// Package issue stores the structured records produced from finished calls
// until a downstream consumer retrieves them.
package issue

import (
	"sync"
	"time"
)

// Priority levels assigned by summarization.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
	PriorityNone     = "none"
	PriorityUnknown  = "unknown"
)

// Record is the structured output of one finished call. Immutable except
// for Visited, which flips true exactly once on first poll.
type Record struct {
	Name             string    `json:"name"`
	Company          string    `json:"company,omitempty"`
	Number           string    `json:"number"`
	SystemInfo       string    `json:"system_info,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Priority         string    `json:"priority"`
	RawTranscription []string  `json:"raw_transcription"`
	Visited          bool      `json:"visited"`
	Timestamp        time.Time `json:"timestamp"`
}

// Queue is a concurrency-safe, insertion-ordered store of issue records.
//
// Poll returns every current record and marks it visited. Sweep evicts a
// record only once it is both visited and older than the retention window;
// an unvisited record is never evicted, whatever its age, so nothing is
// lost before first consumption. That choice means an unpolled queue can
// grow past its nominal capacity: enqueue relieves pressure by evicting the
// oldest visited records first and otherwise keeps growing.
type Queue struct {
	retention time.Duration
	capacity  int
	now       func() time.Time

	mu      sync.Mutex
	records []*Record
}

// Option configures the Queue.
type Option func(*Queue)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a Queue with the given retention window and nominal
// capacity.
func NewQueue(retention time.Duration, capacity int, opts ...Option) *Queue {
	q := &Queue{
		retention: retention,
		capacity:  capacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a record, preserving insertion order. The record's
// timestamp is set if unset.
func (q *Queue) Enqueue(rec *Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = q.now()
	}
	if q.capacity > 0 && len(q.records) >= q.capacity {
		q.evictOldestVisited()
	}
	q.records = append(q.records, rec)
}

// Poll returns a snapshot of all current records and marks every returned
// record visited. Re-polling returns the same records until they are swept.
func (q *Queue) Poll() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, 0, len(q.records))
	for _, rec := range q.records {
		rec.Visited = true
		out = append(out, *rec)
	}
	return out
}

// Sweep removes every record that is both visited and older than the
// retention window, and returns how many were evicted.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-q.retention)
	kept := q.records[:0]
	evicted := 0
	for _, rec := range q.records {
		if rec.Visited && rec.Timestamp.Before(cutoff) {
			evicted++
			continue
		}
		kept = append(kept, rec)
	}
	q.records = kept
	return evicted
}

// Len returns the number of stored records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// evictOldestVisited drops the oldest visited record, if any. Caller must
// hold q.mu.
func (q *Queue) evictOldestVisited() {
	for i, rec := range q.records {
		if rec.Visited {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return
		}
	}
}

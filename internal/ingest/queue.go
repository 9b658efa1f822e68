package ingest

import (
	"sync"

	"github.com/roach88/runcache/internal/run"
)

// reportQueue is a thread-safe unbounded FIFO of stamped runs.
//
// The signal channel (buffered, size 1) lets the Run loop wait with
// context awareness; it is closed by Close to wake waiters.
type reportQueue struct {
	mu     sync.Mutex
	runs   []run.Run
	closed bool
	clock  *Clock
	signal chan struct{}
}

func newReportQueue(clock *Clock, capacity int) *reportQueue {
	return &reportQueue{
		runs:   make([]run.Run, 0, capacity),
		clock:  clock,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue stamps r with the next InsertionSeq and appends it.
// Returns the stamped run and false if the queue is closed.
func (q *reportQueue) Enqueue(r run.Run) (run.Run, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return r, false
	}

	r.InsertionSeq = q.clock.Next()
	q.runs = append(q.runs, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return r, true
}

// TakeBatch removes up to max runs from the front of the queue.
// Returns nil if the queue is empty.
func (q *reportQueue) TakeBatch(max int) []run.Run {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.runs))
	if n == 0 {
		return nil
	}

	batch := make([]run.Run, n)
	copy(batch, q.runs[:n])

	// Zero the taken slots so the backing array does not pin config versions.
	clear(q.runs[:n])
	if n == len(q.runs) {
		q.runs = q.runs[:0]
	} else {
		q.runs = q.runs[n:]
	}
	return batch
}

// Wait returns a channel that signals when runs may be available.
func (q *reportQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *reportQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.runs)
}

// Close stops further enqueues and wakes any waiter.
func (q *reportQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// IsClosed reports whether Close has been called.
func (q *reportQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

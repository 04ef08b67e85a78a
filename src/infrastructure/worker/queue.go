// Package worker runs jobs: an unbounded FIFO of job ids and a fixed pool of
// workers draining it.
package worker

import (
	"context"
	"sync"
)

type itemKind uint8

const (
	itemWork itemKind = iota
	itemShutdown
)

// Item is one queue entry: either a job id to work on or a shutdown signal.
type Item struct {
	kind  itemKind
	jobID int64
}

// Work returns an item carrying a job id.
func Work(id int64) Item { return Item{kind: itemWork, jobID: id} }

// Shutdown returns the signal that makes the receiving worker exit.
func Shutdown() Item { return Item{kind: itemShutdown} }

func (i Item) IsShutdown() bool { return i.kind == itemShutdown }

// JobID returns the job id of a work item.
func (i Item) JobID() int64 { return i.jobID }

// Queue is an unbounded, concurrency-safe FIFO. Enqueue never blocks and there
// is no backpressure. Every item is delivered to exactly one Dequeue caller.
type Queue struct {
	mu    sync.Mutex
	items []Item
	// ready holds at most one wakeup. A consumer that takes an item while more
	// remain passes the wakeup on.
	ready chan struct{}

	// outstanding counts work items enqueued but not yet marked Done.
	outstanding int
	inFlight    int
	idle        chan struct{}
}

func NewQueue() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ready: make(chan struct{}, 1),
		idle:  idle,
	}
}

// Enqueue appends a job id.
func (q *Queue) Enqueue(id int64) {
	q.mu.Lock()
	if q.outstanding == 0 {
		q.idle = make(chan struct{})
	}
	q.outstanding++
	q.items = append(q.items, Work(id))
	q.mu.Unlock()
	q.wake()
}

// EnqueueShutdown appends one shutdown signal behind any queued work.
func (q *Queue) EnqueueShutdown() {
	q.mu.Lock()
	q.items = append(q.items, Shutdown())
	q.mu.Unlock()
	q.wake()
}

// Dequeue blocks until an item is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			if !item.IsShutdown() {
				q.inFlight++
			}
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// Done marks a dequeued work item as finished.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight == 0 || q.outstanding == 0 {
		panic("worker: Queue.Done called more times than work items were dequeued")
	}
	q.inFlight--
	q.outstanding--
	if q.outstanding == 0 {
		close(q.idle)
	}
}

// Drain blocks until the queue holds no work and every dequeued item is Done.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items, shutdown signals included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight returns the number of work items dequeued but not yet Done.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

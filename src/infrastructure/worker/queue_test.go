package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := int64(1); i <= 5; i++ {
		q.Enqueue(i)
	}

	ctx := context.Background()
	for want := int64(1); want <= 5; want++ {
		item, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if item.IsShutdown() {
			t.Fatal("Dequeue() returned shutdown, want work item")
		}
		if item.JobID() != want {
			t.Errorf("JobID() = %d, want %d", item.JobID(), want)
		}
		q.Done()
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()

	got := make(chan Item, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			got <- item
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue() returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue(42)

	select {
	case item := <-got:
		if item.JobID() != 42 {
			t.Errorf("JobID() = %d, want 42", item.JobID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue() did not wake up after Enqueue")
	}
}

func TestQueue_ShutdownAfterWork(t *testing.T) {
	q := NewQueue()
	q.Enqueue(1)
	q.EnqueueShutdown()

	ctx := context.Background()
	first, _ := q.Dequeue(ctx)
	if first.IsShutdown() {
		t.Fatal("shutdown signal overtook queued work")
	}
	second, _ := q.Dequeue(ctx)
	if !second.IsShutdown() {
		t.Fatal("expected shutdown signal")
	}
	if q.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", q.InFlight())
	}
}

func TestQueue_DequeueContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue()

	if err := q.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() on empty queue error = %v", err)
	}

	q.Enqueue(1)
	q.Enqueue(2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() with pending work error = %v, want context.DeadlineExceeded", err)
	}

	drained := make(chan error, 1)
	go func() {
		drained <- q.Drain(context.Background())
	}()

	for range 2 {
		if _, err := q.Dequeue(context.Background()); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		q.Done()
	}

	select {
	case err := <-drained:
		if err != nil {
			t.Errorf("Drain() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain() did not return after all work was done")
	}
}

func TestQueue_DoneWithoutDequeuePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Done() without a dequeued item should panic")
		}
	}()
	NewQueue().Done()
}

func TestQueue_ConcurrentExactlyOnce(t *testing.T) {
	const (
		producers   = 4
		perProducer = 250
		consumers   = 8
	)

	q := NewQueue()
	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)

	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Dequeue(context.Background())
				if err != nil || item.IsShutdown() {
					return
				}
				mu.Lock()
				seen[item.JobID()]++
				mu.Unlock()
				q.Done()
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := range producers {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for i := range perProducer {
				q.Enqueue(int64(p*perProducer + i))
			}
		}()
	}
	pwg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	for range consumers {
		q.EnqueueShutdown()
	}
	wg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("delivered %d distinct ids, want %d", len(seen), producers*perProducer)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("id %d delivered %d times", id, n)
		}
	}
}

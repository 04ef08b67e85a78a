package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"jobrunner/src/infrastructure/job"
	"jobrunner/src/jobctrl"
)

// SystemErrorMessage is recorded when orchestrating a job fails outside the handler.
const SystemErrorMessage = "system error"

var (
	ErrPoolStopped = errors.New("worker pool stopped")

	errJobTimeout = errors.New("job timed out")
)

// Pool is a fixed set of workers sharing one Queue, one store and one registry.
type Pool struct {
	queue    *Queue
	store    job.JobRepository
	registry *jobctrl.Registry
	logger   logr.Logger

	size       int
	jobTimeout time.Duration

	mu       sync.Mutex
	started  bool
	stopping bool
	// ctx is cancelled only when Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize sets the number of concurrent workers.
func WithPoolSize(n int) PoolOption {
	return func(p *Pool) { p.size = n }
}

// WithJobTimeout bounds each handler execution. A job whose handler outlives
// the timeout is recorded as FAILED and its worker moves on. Zero disables it.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.jobTimeout = d }
}

func NewPool(queue *Queue, store job.JobRepository, registry *jobctrl.Registry, logger logr.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:    queue,
		store:    store,
		registry: registry,
		logger:   logger,
		size:     4,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.size < 1 {
		p.size = 1
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

func (p *Pool) Size() int { return p.size }

// Start launches the workers and returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return ErrPoolStopped
	}
	if p.started {
		return nil
	}
	p.started = true

	p.logger.Info("Starting worker pool", "workers", p.size, "job_timeout", p.jobTimeout)
	for i := range p.size {
		p.wg.Add(1)
		go p.work(i)
	}
	return nil
}

// Stop enqueues one shutdown signal per worker and waits for all of them to
// exit. Workers finish their current job first. If ctx ends before that,
// in-flight handlers are cancelled, unclaimed jobs stay PENDING, and Stop
// returns once every worker has exited.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopping {
		p.stopping = true
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool")
	for range p.size {
		p.queue.EnqueueShutdown()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Info("Stop deadline reached, cancelling in-flight jobs")
		p.cancel()
		<-done
		return fmt.Errorf("worker pool stop forced: %w", ctx.Err())
	}
}

// Drain blocks until every enqueued job has been processed.
func (p *Pool) Drain(ctx context.Context) error {
	return p.queue.Drain(ctx)
}

func (p *Pool) work(workerID int) {
	defer p.wg.Done()

	logger := p.logger.WithValues("worker_id", workerID)
	logger.V(1).Info("Worker started")

	for {
		item, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			logger.V(1).Info("Worker cancelled")
			return
		}
		if item.IsShutdown() {
			logger.V(1).Info("Worker received shutdown signal")
			return
		}

		p.process(logger, item.JobID())
		p.queue.Done()
	}
}

// process drives one job to a terminal status. It never panics and never
// returns an error: every fault ends up logged and, when possible, recorded.
func (p *Pool) process(logger logr.Logger, id int64) {
	logger = logger.WithValues("job_id", id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Errorf("panic: %v", r), "Unexpected fault while processing job", "stack", string(debug.Stack()))
			p.failBestEffort(logger, id)
		}
	}()

	if err := p.run(logger, id); err != nil {
		logger.Error(err, "Unexpected fault while processing job")
		p.failBestEffort(logger, id)
	}
}

func (p *Pool) run(logger logr.Logger, id int64) error {
	ctx := p.ctx
	if ctx.Err() != nil {
		logger.Info("Pool is stopping, leaving job pending")
		return nil
	}

	j, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			logger.Info("Job not found, dropping")
			return nil
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	if j.Status != job.JobStatusPending {
		logger.Info("Job is not pending, skipping", "status", j.Status)
		return nil
	}

	if err := p.store.UpdateStatus(ctx, id, job.JobStatusProcessing, nil, nil); err != nil {
		if errors.Is(err, job.ErrStatusConflict) || errors.Is(err, job.ErrInvalidTransition) ||
			errors.Is(err, job.ErrJobNotFound) || ctx.Err() != nil {
			logger.Info("Job could not be claimed, skipping", "reason", err.Error())
			return nil
		}
		return fmt.Errorf("failed to update job status to processing: %w", err)
	}

	logger = logger.WithValues("task_type", j.TaskType)
	logger.Info("Processing job")

	// Outcomes are recorded even if the pool is being force-stopped.
	writeCtx := context.WithoutCancel(ctx)

	start := time.Now()
	result, execErr := p.execute(ctx, j)
	elapsed := time.Since(start)

	if execErr != nil {
		msg := FailureMessage(execErr)
		logger.Info("Job failed", "error", msg, "elapsed", elapsed)
		if err := p.store.UpdateStatus(writeCtx, id, job.JobStatusFailed, nil, &msg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	if err := p.store.UpdateStatus(writeCtx, id, job.JobStatusCompleted, result, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	logger.Info("Job completed", "elapsed", elapsed)
	return nil
}

type outcome struct {
	result json.RawMessage
	err    error
}

// execute runs the handler on its own goroutine so a handler that ignores its
// context cannot hold the worker past the job timeout or a forced stop.
func (p *Pool) execute(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.jobTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		result, err := p.registry.Execute(execCtx, j.TaskType, j.Payload)
		done <- outcome{result: result, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-execCtx.Done():
		o.err = execCtx.Err()
	}

	if o.err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ErrPoolStopped
		case execCtx.Err() != nil:
			return nil, fmt.Errorf("%w after %s", errJobTimeout, p.jobTimeout)
		}
	}
	return o.result, o.err
}

// failBestEffort records a system error. The store refuses the write if the job
// was never claimed, which leaves it PENDING.
func (p *Pool) failBestEffort(logger logr.Logger, id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := SystemErrorMessage
	if err := p.store.UpdateStatus(ctx, id, job.JobStatusFailed, nil, &msg); err != nil {
		logger.Error(err, "Failed to record system error on job")
	}
}

// FailureMessage renders a job failure as "<kind>: <description>".
func FailureMessage(err error) string {
	var unknown *jobctrl.UnknownTaskTypeError
	var handlerErr *jobctrl.HandlerError

	switch {
	case errors.As(err, &unknown):
		return "UnknownTaskType: " + unknown.Error()
	case errors.Is(err, errJobTimeout):
		return "Timeout: " + err.Error()
	case errors.Is(err, ErrPoolStopped):
		return "Canceled: " + err.Error()
	case errors.As(err, &handlerErr):
		return "HandlerError: " + handlerErr.Error()
	default:
		return "SystemError: " + err.Error()
	}
}

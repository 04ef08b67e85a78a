package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const maxTaskTypeLength = 255

// Enqueuer accepts job ids for local execution.
type Enqueuer interface {
	Enqueue(id int64)
}

// Dispatcher hands a freshly created job to whatever will execute it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job) error
}

// QueueDispatcher dispatches to an in-process work queue.
type QueueDispatcher struct {
	Queue Enqueuer
}

func (d QueueDispatcher) Dispatch(_ context.Context, job *Job) error {
	d.Queue.Enqueue(job.ID)
	return nil
}

type JobService struct {
	repo       JobRepository
	dispatcher Dispatcher
}

func NewJobService(repo JobRepository, dispatcher Dispatcher) *JobService {
	return &JobService{
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// Submit validates a submission, creates the job record and dispatches it.
func (s *JobService) Submit(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	taskType = strings.TrimSpace(taskType)
	if err := validateSubmission(taskType, payload); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to dispatch job %d: %w", job.ID, err)
	}

	return job, nil
}

func (s *JobService) Get(ctx context.Context, id int64) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context, opts ListOpts) ([]*Job, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", opts.Status)}
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "limit and offset must not be negative"}
	}
	return s.repo.List(ctx, opts)
}

func (s *JobService) Stats(ctx context.Context) (map[JobStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *JobService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validateSubmission(taskType string, payload json.RawMessage) error {
	if taskType == "" {
		return &ValidationError{Field: "task_type", Reason: "must not be empty"}
	}
	if len(taskType) > maxTaskTypeLength {
		return &ValidationError{Field: "task_type", Reason: fmt.Sprintf("longer than %d characters", maxTaskTypeLength)}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return &ValidationError{Field: "payload", Reason: "must be a JSON object"}
	}
	return nil
}

package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"jobrunner/src/infrastructure/job"
	"jobrunner/src/infrastructure/job/jobtest"
)

type recordingQueue struct {
	ids []int64
}

func (q *recordingQueue) Enqueue(id int64) { q.ids = append(q.ids, id) }

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, *job.Job) error {
	return errors.New("broker unavailable")
}

func TestJobService_Submit(t *testing.T) {
	queue := &recordingQueue{}
	svc := job.NewJobService(jobtest.NewRepository(t), job.QueueDispatcher{Queue: queue})

	created, err := svc.Submit(context.Background(), "  math_op ", json.RawMessage(`{"operation":"add","a":10,"b":20}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if created.TaskType != "math_op" {
		t.Errorf("TaskType = %q, want %q", created.TaskType, "math_op")
	}
	if created.Status != job.JobStatusPending {
		t.Errorf("Status = %s, want PENDING", created.Status)
	}
	if len(queue.ids) != 1 || queue.ids[0] != created.ID {
		t.Errorf("enqueued %v, want [%d]", queue.ids, created.ID)
	}
}

func TestJobService_SubmitValidation(t *testing.T) {
	tests := []struct {
		name      string
		taskType  string
		payload   string
		wantField string
	}{
		{name: "empty task type", taskType: "", payload: `{}`, wantField: "task_type"},
		{name: "blank task type", taskType: "   ", payload: `{}`, wantField: "task_type"},
		{name: "task type too long", taskType: strings.Repeat("x", 256), payload: `{}`, wantField: "task_type"},
		{name: "payload array", taskType: "math_op", payload: `[1,2]`, wantField: "payload"},
		{name: "payload scalar", taskType: "math_op", payload: `42`, wantField: "payload"},
		{name: "payload malformed", taskType: "math_op", payload: `{"a":`, wantField: "payload"},
	}

	repo := jobtest.NewRepository(t)
	queue := &recordingQueue{}
	svc := job.NewJobService(repo, job.QueueDispatcher{Queue: queue})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.taskType, json.RawMessage(tt.payload))

			var verr *job.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Submit() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}

	jobs, err := repo.List(context.Background(), job.ListOpts{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 0 || len(queue.ids) != 0 {
		t.Errorf("rejected submissions left %d jobs and %d queue entries", len(jobs), len(queue.ids))
	}
}

func TestJobService_SubmitEmptyPayload(t *testing.T) {
	svc := job.NewJobService(jobtest.NewRepository(t), job.QueueDispatcher{Queue: &recordingQueue{}})

	created, err := svc.Submit(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if string(created.Payload) != `{}` {
		t.Errorf("Payload = %s, want {}", created.Payload)
	}
}

func TestJobService_SubmitDispatchFailure(t *testing.T) {
	svc := job.NewJobService(jobtest.NewRepository(t), failingDispatcher{})

	_, err := svc.Submit(context.Background(), "noop", nil)
	if err == nil || !strings.Contains(err.Error(), "broker unavailable") {
		t.Errorf("Submit() error = %v, want dispatch failure", err)
	}
}

func TestJobService_ListValidation(t *testing.T) {
	svc := job.NewJobService(jobtest.NewRepository(t), job.QueueDispatcher{Queue: &recordingQueue{}})

	tests := []struct {
		name string
		opts job.ListOpts
	}{
		{name: "unknown status", opts: job.ListOpts{Status: "DONE"}},
		{name: "negative limit", opts: job.ListOpts{Limit: -1}},
		{name: "negative offset", opts: job.ListOpts{Offset: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.List(context.Background(), tt.opts)
			var verr *job.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("List() error = %v, want *ValidationError", err)
			}
		})
	}
}

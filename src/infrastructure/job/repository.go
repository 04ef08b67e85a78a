package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// JobRepository defines the interface for job persistence.
// It is the only place a job's status is mutated.
type JobRepository interface {
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error)
	Get(ctx context.Context, id int64) (*Job, error)
	UpdateStatus(ctx context.Context, id int64, status JobStatus, result json.RawMessage, errMsg *string) error
	List(ctx context.Context, opts ListOpts) ([]*Job, error)
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
	Delete(ctx context.Context, id int64) error
}

type GormJobRepository struct {
	db        *gorm.DB
	snowflake *snowflake.Node
	now       func() time.Time
}

func NewGormJobRepository(db *gorm.DB, nodeID int64) (*GormJobRepository, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	return &GormJobRepository{
		db:        db,
		snowflake: node,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}, nil
}

// Migrate creates or updates the jobs table.
func (r *GormJobRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Job{}); err != nil {
		return fmt.Errorf("failed to migrate jobs table: %w", err)
	}
	return nil
}

func (r *GormJobRepository) Create(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	now := r.now()
	job := &Job{
		ID:        r.snowflake.Generate().Int64(),
		TaskType:  taskType,
		Payload:   payload,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create job: %w", result.Error)
	}

	return job, nil
}

func (r *GormJobRepository) Get(ctx context.Context, id int64) (*Job, error) {
	var job Job
	result := r.db.WithContext(ctx).First(&job, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get job: %w", result.Error)
	}

	return &job, nil
}

// UpdateStatus moves a job along the state machine. The write is conditioned on
// the status read just before it, so two concurrent transitions of the same row
// cannot both succeed; the loser gets ErrStatusConflict.
func (r *GormJobRepository) UpdateStatus(ctx context.Context, id int64, status JobStatus, result json.RawMessage, errMsg *string) error {
	if err := checkOutcome(status, result, errMsg); err != nil {
		return &TransitionError{ID: id, To: status, Err: err}
	}

	var current Job
	res := r.db.WithContext(ctx).Select("id", "status", "updated_at").First(&current, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return &NotFoundError{ID: id}
		}
		return fmt.Errorf("failed to get job: %w", res.Error)
	}

	if !current.Status.CanTransitionTo(status) {
		return &TransitionError{ID: id, From: current.Status, To: status, Err: ErrInvalidTransition}
	}

	updatedAt := r.now()
	if updatedAt.Before(current.UpdatedAt) {
		updatedAt = current.UpdatedAt
	}

	var resultValue interface{}
	if len(result) > 0 {
		resultValue = []byte(result)
	}

	res = r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, current.Status).
		Updates(map[string]interface{}{
			"status":     status,
			"result":     resultValue,
			"error":      errMsg,
			"updated_at": updatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update job status: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return &TransitionError{ID: id, From: current.Status, To: status, Err: ErrStatusConflict}
	}

	return nil
}

// List returns jobs newest first.
func (r *GormJobRepository) List(ctx context.Context, opts ListOpts) ([]*Job, error) {
	var jobs []*Job

	query := r.db.WithContext(ctx).Order("id DESC")
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (r *GormJobRepository) CountByStatus(ctx context.Context) (map[JobStatus]int64, error) {
	var rows []struct {
		Status JobStatus
		Count  int64
	}

	err := r.db.WithContext(ctx).Model(&Job{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *GormJobRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&Job{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}

	return nil
}

// Close releases the underlying connection pool.
func (r *GormJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// checkOutcome enforces that result is present iff COMPLETED and error iff FAILED.
func checkOutcome(status JobStatus, result json.RawMessage, errMsg *string) error {
	switch status {
	case JobStatusProcessing:
		if len(result) > 0 || errMsg != nil {
			return fmt.Errorf("%w: PROCESSING carries neither result nor error", ErrInvalidTransition)
		}
	case JobStatusCompleted:
		if len(result) == 0 || errMsg != nil {
			return fmt.Errorf("%w: COMPLETED requires a result and no error", ErrInvalidTransition)
		}
	case JobStatusFailed:
		if len(result) > 0 || errMsg == nil || *errMsg == "" {
			return fmt.Errorf("%w: FAILED requires an error message and no result", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: unsupported target status %q", ErrInvalidTransition, status)
	}
	return nil
}

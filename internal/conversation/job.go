package conversation

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// RetitleJob records a conversation whose title came from the fallback path
// and should be regenerated off the request path.
type RetitleJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID         string `gorm:"size:64;index;not null"`
	ConversationID string `gorm:"size:64;index;not null"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetitleJob) TableName() string { return "retitle_jobs" }

type JobRepo struct {
	db *gorm.DB
}

func NewJobRepo(db *gorm.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) CreateJob(ctx context.Context, job *RetitleJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepo) GetJobByID(ctx context.Context, id string) (*RetitleJob, error) {
	var j RetitleJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) MarkJobRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&RetitleJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *JobRepo) MarkJobSucceeded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&RetitleJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobSucceeded,
			"error":  nil,
		}).Error
}

func (r *JobRepo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&RetitleJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobFailed,
			"error":  errMsg,
		}).Error
}

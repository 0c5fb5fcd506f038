package tts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Job{})
}

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if idempotency_key already exists,
// it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// MarkJobRunning moves a queued job to running. It reports false when the
// job is not queued, e.g. a duplicate delivery of a job already picked up.
func (r *Repo) MarkJobRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Updates(map[string]any{
			"status":     JobRunning,
			"started_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) MarkJobCompleted(ctx context.Context, id string, result Result, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobRunning).
		Updates(map[string]any{
			"status":       JobCompleted,
			"result":       result,
			"error":        nil,
			"completed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkJobFailed fails a job that has not finished yet. Terminal jobs are left untouched.
func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, []JobStatus{JobQueued, JobRunning}).
		Updates(map[string]any{
			"status":       JobFailed,
			"error":        errMsg,
			"result":       nil,
			"completed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// FailRunningJobs fails every job left running, e.g. by a crashed worker.
func (r *Repo) FailRunningJobs(ctx context.Context, errMsg string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", JobRunning).
		Updates(map[string]any{
			"status":       JobFailed,
			"error":        errMsg,
			"completed_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListQueuedJobIDs returns queued ids oldest first.
func (r *Repo) ListQueuedJobIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", JobQueued).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repo) CountByStatus(ctx context.Context) (map[JobStatus]int64, error) {
	var rows []struct {
		Status JobStatus
		N      int64
	}
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[JobStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

// ListFinishedBefore returns terminal jobs completed before cutoff.
func (r *Repo) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	var jobs []Job
	err := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?", []JobStatus{JobCompleted, JobFailed}, cutoff).
		Order("completed_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *Repo) DeleteJob(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Job{}, "id = ?", id).Error
}

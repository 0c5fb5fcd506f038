// Package tts owns the job lifecycle: validated submission, the FIFO queue,
// the single worker, and status/result lookup.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/tts-platform/internal/common"
	"github.com/suPer8Hu/tts-platform/internal/engine"
	"github.com/suPer8Hu/tts-platform/internal/queue"
	"github.com/suPer8Hu/tts-platform/internal/store"
	"go.uber.org/zap"
)

const interruptedMessage = "job interrupted by restart"

// Renderer turns one text into one audio artifact.
type Renderer interface {
	Render(ctx context.Context, req engine.Request) (*engine.Rendered, error)
}

type Option func(*Manager)

func WithJobTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.jobTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

func WithSlowJobThreshold(d time.Duration) Option {
	return func(m *Manager) { m.slowJob = d }
}

func WithLimits(l Limits) Option {
	return func(m *Manager) { m.limits = l.withDefaults() }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	repo     *Repo
	broker   queue.Broker
	blobs    store.BlobStore
	renderer Renderer
	log      *zap.Logger
	now      func() time.Time

	limits       Limits
	jobTimeout   time.Duration
	pollInterval time.Duration
	slowJob      time.Duration
}

func NewManager(repo *Repo, broker queue.Broker, blobs store.BlobStore, renderer Renderer, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		broker:       broker,
		blobs:        blobs,
		renderer:     renderer,
		log:          zap.NewNop(),
		now:          time.Now,
		limits:       Limits{}.withDefaults(),
		jobTimeout:   10 * time.Minute,
		pollInterval: 250 * time.Millisecond,
		slowJob:      time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Limits() Limits { return m.limits }

// Submit validates req, records a queued job and enqueues it. With an
// idempotency key that was seen before, the earlier job is returned and
// created is false.
func (m *Manager) Submit(ctx context.Context, req Request) (job *Job, created bool, err error) {
	params, err := m.limits.Validate(req)
	if err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	if req.Type == JobTypeVoiceClone {
		params.ReferenceKey = referenceKey(id)
		params.ReferenceName = req.ReferenceName
		if err := m.blobs.Put(ctx, params.ReferenceKey, req.Reference); err != nil {
			return nil, false, fmt.Errorf("store reference audio: %w", err)
		}
	}

	job = &Job{
		ID:     id,
		Type:   req.Type,
		Status: JobQueued,
		Params: params,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		job.IdempotencyKey = &key
	}

	job, created, err = m.repo.CreateJobOrGetExisting(ctx, job)
	if err != nil || !created {
		if params.ReferenceKey != "" {
			m.deleteArtifact(ctx, params.ReferenceKey)
		}
		if err != nil {
			return nil, false, err
		}
		return job, false, nil
	}

	if err := m.broker.Publish(ctx, job.ID); err != nil {
		m.log.Error("enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		if _, markErr := m.repo.MarkJobFailed(context.WithoutCancel(ctx), job.ID, "enqueue failed: "+err.Error(), m.now()); markErr != nil {
			m.log.Error("mark failed after enqueue error", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		if params.ReferenceKey != "" {
			m.deleteArtifact(ctx, params.ReferenceKey)
		}
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}

	m.log.Info("job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("text_chars", textChars(params)),
		zap.String("output_format", string(params.OutputFormat)),
	)
	return job, true, nil
}

type StatusSnapshot struct {
	JobID       string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	JobType     JobType    `json:"job_type"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Error       string     `json:"error,omitempty"`
}

func (m *Manager) GetStatus(ctx context.Context, id string) (*StatusSnapshot, error) {
	j, err := m.repo.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s := &StatusSnapshot{
		JobID:       j.ID,
		Status:      j.Status,
		JobType:     j.Type,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Error != nil {
		s.Error = *j.Error
	}
	return s, nil
}

// Outcome is a finished job with its audio loaded. Ready is false while
// the job is still queued or running.
type Outcome struct {
	Job       *Job
	Ready     bool
	Audio     []byte
	ItemAudio [][]byte // batch jobs, aligned with Result.Items; nil for failed items
}

func (m *Manager) GetResult(ctx context.Context, id string) (*Outcome, error) {
	j, err := m.repo.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.outcome(ctx, j)
}

func (m *Manager) outcome(ctx context.Context, j *Job) (*Outcome, error) {
	out := &Outcome{Job: j, Ready: j.Status.Terminal()}
	if j.Status != JobCompleted || j.Result == nil {
		return out, nil
	}

	if j.Result.AudioKey != "" {
		b, err := m.blobs.Get(ctx, j.Result.AudioKey)
		if err != nil {
			return nil, fmt.Errorf("load audio for job %s: %w", j.ID, expired(err))
		}
		out.Audio = b
	}
	if len(j.Result.Items) > 0 {
		out.ItemAudio = make([][]byte, len(j.Result.Items))
		for i, item := range j.Result.Items {
			if !item.Success || item.AudioKey == "" {
				continue
			}
			b, err := m.blobs.Get(ctx, item.AudioKey)
			if err != nil {
				return nil, fmt.Errorf("load audio for job %s item %d: %w", j.ID, i, expired(err))
			}
			out.ItemAudio[i] = b
		}
	}
	return out, nil
}

// expired maps a missing blob to ErrResultExpired. Blob TTLs and the prune
// sweep are independent, so a completed row can outlive its audio.
func expired(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrResultExpired
	}
	return err
}

// Wait polls until the job is terminal and returns its outcome. It returns
// ctx.Err() when ctx ends first; the job keeps running.
func (m *Manager) Wait(ctx context.Context, id string) (*Outcome, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		j, err := m.repo.GetJobByID(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if j.Status.Terminal() {
			return m.outcome(ctx, j)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type Metrics struct {
	QueueSize          int64 `json:"queue_size"`
	ActiveJobs         int64 `json:"active_jobs"`
	TotalJobsProcessed int64 `json:"total_jobs_processed"`
	Completed          int64 `json:"completed"`
	Failed             int64 `json:"failed"`
}

func (m *Manager) Metrics(ctx context.Context) (Metrics, error) {
	counts, err := m.repo.CountByStatus(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		QueueSize:          counts[JobQueued],
		ActiveJobs:         counts[JobRunning],
		TotalJobsProcessed: counts[JobCompleted] + counts[JobFailed],
		Completed:          counts[JobCompleted],
		Failed:             counts[JobFailed],
	}, nil
}

// Recover runs before the worker starts. Jobs left running by a previous
// process are failed. With requeue, queued jobs are published again oldest
// first; use it when the broker does not persist messages.
func (m *Manager) Recover(ctx context.Context, requeue bool) error {
	n, err := m.repo.FailRunningJobs(ctx, interruptedMessage, m.now())
	if err != nil {
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if n > 0 {
		m.log.Warn("failed jobs interrupted by restart", zap.Int64("count", n))
	}
	if !requeue {
		return nil
	}

	ids, err := m.repo.ListQueuedJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	for _, id := range ids {
		if err := m.broker.Publish(ctx, id); err != nil {
			return fmt.Errorf("requeue job %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		m.log.Info("requeued pending jobs", zap.Int("count", len(ids)))
	}
	return nil
}

// Prune deletes terminal jobs and their artifacts older than retention.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := m.now().Add(-retention)
	pruned := 0
	for {
		jobs, err := m.repo.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			return pruned, err
		}
		if len(jobs) == 0 {
			return pruned, nil
		}
		for _, j := range jobs {
			for _, key := range artifactKeys(&j) {
				m.deleteArtifact(ctx, key)
			}
			if err := m.repo.DeleteJob(ctx, j.ID); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
}

func (m *Manager) deleteArtifact(ctx context.Context, key string) {
	if err := m.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.log.Warn("delete artifact failed", zap.String("key", key), zap.Error(err))
	}
}

// artifactKeys lists every key a job may have written, whether or not it
// completed.
func artifactKeys(j *Job) []string {
	var keys []string
	if j.Params.ReferenceKey != "" {
		keys = append(keys, j.Params.ReferenceKey)
	}
	return append(keys, outputKeys(j)...)
}

func outputKeys(j *Job) []string {
	if j.Type != JobTypeBatch {
		return []string{audioKey(j.ID)}
	}
	keys := make([]string, len(j.Params.Texts))
	for i := range j.Params.Texts {
		keys[i] = itemAudioKey(j.ID, i)
	}
	return keys
}

func referenceKey(jobID string) string { return "ref/" + jobID }

func audioKey(jobID string) string { return "audio/" + jobID }

func itemAudioKey(jobID string, i int) string { return fmt.Sprintf("audio/%s/%d", jobID, i) }

func textChars(p Params) int {
	n := len([]rune(p.Text))
	for _, t := range p.Texts {
		n += len([]rune(t))
	}
	return n
}

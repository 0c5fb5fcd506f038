package tts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/tts-platform/internal/audio"
)

func TestRepoLifecycle(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()

	job := &Job{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ1", Type: JobTypeTTS, Status: JobQueued, Params: Params{Text: "hi", OutputFormat: audio.FormatMP3}}
	require.NoError(t, repo.CreateJob(ctx, job))

	got, err := repo.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Params.Text)
	assert.Equal(t, audio.FormatMP3, got.Params.OutputFormat)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.StartedAt)

	now := time.Now()
	ok, err := repo.MarkJobRunning(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// second pick-up of the same job is refused
	ok, err = repo.MarkJobRunning(ctx, job.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkJobCompleted(ctx, job.ID, Result{AudioKey: "audio/x", DurationSeconds: 1.5}, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// terminal jobs never change again
	ok, err = repo.MarkJobFailed(ctx, job.ID, "late failure", now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.MarkJobCompleted(ctx, job.ID, Result{}, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "audio/x", got.Result.AudioKey)
	assert.Equal(t, 1.5, got.Result.DurationSeconds)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestRepoGetMissing(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	_, err := repo.GetJobByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoIdempotency(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	key := "req-1"

	first, created, err := repo.CreateJobOrGetExisting(ctx, &Job{ID: "01HZZZZZZZZZZZZZZZZZZZZZZA", Type: JobTypeTTS, Status: JobQueued, IdempotencyKey: &key})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.CreateJobOrGetExisting(ctx, &Job{ID: "01HZZZZZZZZZZZZZZZZZZZZZZB", Type: JobTypeTTS, Status: JobQueued, IdempotencyKey: &key})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	empty := ""
	_, created, err = repo.CreateJobOrGetExisting(ctx, &Job{ID: "01HZZZZZZZZZZZZZZZZZZZZZZC", Type: JobTypeTTS, Status: JobQueued, IdempotencyKey: &empty})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestRepoCountsAndQueuedOrder(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	jobs := []Job{
		{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ3", Status: JobQueued, CreatedAt: base.Add(3 * time.Second)},
		{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ1", Status: JobQueued, CreatedAt: base.Add(1 * time.Second)},
		{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ2", Status: JobRunning, CreatedAt: base.Add(2 * time.Second)},
		{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ4", Status: JobCompleted, CreatedAt: base},
		{ID: "01HZZZZZZZZZZZZZZZZZZZZZZ5", Status: JobFailed, CreatedAt: base},
	}
	for i := range jobs {
		jobs[i].Type = JobTypeTTS
		require.NoError(t, repo.CreateJob(ctx, &jobs[i]))
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[JobStatus]int64{JobQueued: 2, JobRunning: 1, JobCompleted: 1, JobFailed: 1}, counts)

	ids, err := repo.ListQueuedJobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"01HZZZZZZZZZZZZZZZZZZZZZZ1", "01HZZZZZZZZZZZZZZZZZZZZZZ3"}, ids)

	n, err := repo.FailRunningJobs(ctx, "interrupted", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetJobByID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZ2")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "interrupted", *got.Error)
}

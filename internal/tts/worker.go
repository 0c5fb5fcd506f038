package tts

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/suPer8Hu/tts-platform/internal/audio"
	"github.com/suPer8Hu/tts-platform/internal/engine"
	"github.com/suPer8Hu/tts-platform/internal/queue"
	"github.com/suPer8Hu/tts-platform/internal/synth"
	"go.uber.org/zap"
)

// Run is the single worker. It takes one job at a time off the broker and
// returns nil when ctx ends and an error when the broker stops delivering
// first. The job in flight when ctx ends is failed and acked.
func (m *Manager) Run(ctx context.Context) error {
	deliveries, err := m.broker.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	m.log.Info("worker started", zap.Duration("job_timeout", m.jobTimeout))

	for d := range deliveries {
		m.handle(ctx, d)
	}
	if ctx.Err() == nil {
		return errors.New("broker stopped delivering jobs")
	}
	m.log.Info("worker stopped")
	return nil
}

func (m *Manager) handle(ctx context.Context, d queue.Delivery) {
	jobStart := time.Now()
	bg := context.WithoutCancel(ctx)

	started, err := m.repo.MarkJobRunning(ctx, d.JobID, m.now())
	if err != nil {
		m.log.Error("mark running failed", zap.String("job_id", d.JobID), zap.Error(err))
		// leave it on the queue; a restart fails or requeues it
		_ = d.Nack(true)
		return
	}
	if !started {
		m.log.Info("skipping job that is not queued", zap.String("job_id", d.JobID))
		_ = d.Ack()
		return
	}

	job, err := m.repo.GetJobByID(ctx, d.JobID)
	if err != nil {
		m.finishFailed(bg, d.JobID, fmt.Sprintf("load job: %v", err), jobStart)
		_ = d.Ack()
		return
	}
	queueWait := jobStart.Sub(job.CreatedAt)

	jobCtx, cancel := context.WithTimeout(ctx, m.jobTimeout)
	result, err := m.process(jobCtx, job)
	timedOut := errors.Is(jobCtx.Err(), context.DeadlineExceeded)
	cancel()

	if job.Params.ReferenceKey != "" {
		m.deleteArtifact(bg, job.Params.ReferenceKey)
	}

	if err != nil {
		msg := err.Error()
		if timedOut {
			msg = fmt.Sprintf("job timed out after %s: %v", m.jobTimeout, err)
		} else if ctx.Err() != nil {
			msg = interruptedMessage
		}
		m.discardOutputs(bg, job)
		m.finishFailed(bg, job.ID, msg, jobStart)
		_ = d.Ack()
		return
	}

	ok, err := m.repo.MarkJobCompleted(bg, job.ID, *result, m.now())
	if err != nil {
		m.log.Warn("mark completed failed, retrying", zap.String("job_id", job.ID), zap.Error(err))
		ok, err = m.repo.MarkJobCompleted(bg, job.ID, *result, m.now())
	}
	if err != nil || !ok {
		m.log.Error("mark completed failed", zap.String("job_id", job.ID), zap.Bool("updated", ok), zap.Error(err))
		msg := "record result: job is no longer running"
		if err != nil {
			msg = fmt.Sprintf("record result: %v", err)
		}
		// the job must end terminal and without audio
		m.discardOutputs(bg, job)
		m.finishFailed(bg, job.ID, msg, jobStart)
		_ = d.Ack()
		return
	}
	_ = d.Ack()

	total := time.Since(jobStart)
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Duration("queue_wait", queueWait),
		zap.Duration("took", total),
		zap.Int("chunks", result.Chunks),
		zap.Float64("audio_seconds", result.audioSeconds()),
		zap.String("size", humanize.Bytes(uint64(result.SizeBytes))),
	}
	if m.slowJob > 0 && total > m.slowJob {
		m.log.Warn("job_timing slow job completed", fields...)
		return
	}
	m.log.Info("job completed", fields...)
}

// discardOutputs removes any audio the job stored before it failed.
func (m *Manager) discardOutputs(ctx context.Context, job *Job) {
	for _, key := range outputKeys(job) {
		m.deleteArtifact(ctx, key)
	}
}

func (m *Manager) finishFailed(ctx context.Context, id, msg string, start time.Time) {
	if _, err := m.repo.MarkJobFailed(ctx, id, msg, m.now()); err != nil {
		m.log.Error("mark failed failed", zap.String("job_id", id), zap.Error(err))
	}
	m.log.Warn("job failed",
		zap.String("job_id", id),
		zap.Duration("took", time.Since(start)),
		zap.String("error", msg),
	)
}

// process renders the job. A panic in the engine or a backend is turned
// into an error so one bad job cannot stop the worker.
func (m *Manager) process(ctx context.Context, job *Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic while processing job",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	switch job.Type {
	case JobTypeTTS, JobTypeVoiceClone:
		return m.processSingle(ctx, job)
	case JobTypeBatch:
		return m.processBatch(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (m *Manager) synthParams(ctx context.Context, p Params) (synth.Params, error) {
	sp := synth.Params{
		Exaggeration: p.Exaggeration,
		CFGWeight:    p.CFGWeight,
		Temperature:  p.Temperature,
	}
	if p.ReferenceKey != "" {
		ref, err := m.blobs.Get(ctx, p.ReferenceKey)
		if err != nil {
			return synth.Params{}, fmt.Errorf("load reference audio: %w", err)
		}
		sp.Reference = ref
		sp.ReferenceName = p.ReferenceName
	}
	return sp, nil
}

func (m *Manager) processSingle(ctx context.Context, job *Job) (*Result, error) {
	sp, err := m.synthParams(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	out, err := m.renderer.Render(ctx, engine.Request{Text: job.Params.Text, Params: sp, Format: job.Params.OutputFormat})
	if err != nil {
		return nil, err
	}

	key := audioKey(job.ID)
	if err := m.blobs.Put(ctx, key, out.Audio); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}
	return &Result{
		AudioKey:        key,
		OutputFormat:    out.Format,
		MediaType:       out.MediaType,
		SampleRate:      out.SampleRate,
		DurationSeconds: out.DurationSeconds,
		Chunks:          out.Chunks,
		SizeBytes:       len(out.Audio),
		VoiceCloned:     sp.Reference != nil,
	}, nil
}

// processBatch renders items in order. An item failure is recorded on the
// item; only an expired job context fails the whole batch.
func (m *Manager) processBatch(ctx context.Context, job *Job) (*Result, error) {
	sp, err := m.synthParams(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	res := &Result{OutputFormat: audio.FormatWAV, MediaType: audio.FormatWAV.MediaType()}
	res.Items = make([]BatchItem, len(job.Params.Texts))
	for i, text := range job.Params.Texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch stopped at item %d/%d: %w", i+1, len(job.Params.Texts), err)
		}

		out, err := m.renderer.Render(ctx, engine.Request{Text: text, Params: sp, Format: audio.FormatWAV})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("batch stopped at item %d/%d: %w", i+1, len(job.Params.Texts), err)
			}
			m.log.Warn("batch item failed", zap.String("job_id", job.ID), zap.Int("item", i), zap.Error(err))
			res.Items[i] = BatchItem{Success: false, Message: fmt.Sprintf("Error: %v", err)}
			continue
		}

		key := itemAudioKey(job.ID, i)
		if err := m.blobs.Put(ctx, key, out.Audio); err != nil {
			res.Items[i] = BatchItem{Success: false, Message: fmt.Sprintf("Error: store audio: %v", err)}
			continue
		}
		res.Items[i] = BatchItem{
			Success:         true,
			Message:         "Generated successfully",
			AudioKey:        key,
			SampleRate:      out.SampleRate,
			DurationSeconds: out.DurationSeconds,
		}
		res.TotalDuration += out.DurationSeconds
		res.SizeBytes += len(out.Audio)
		res.Chunks += out.Chunks
		if res.SampleRate == 0 {
			res.SampleRate = out.SampleRate
		}
	}
	res.DurationSeconds = res.TotalDuration
	return res, nil
}

func (r *Result) audioSeconds() float64 {
	if r.TotalDuration > 0 {
		return r.TotalDuration
	}
	return r.DurationSeconds
}

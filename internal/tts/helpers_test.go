package tts

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/tts-platform/internal/audio"
	"github.com/suPer8Hu/tts-platform/internal/db"
	"github.com/suPer8Hu/tts-platform/internal/engine"
	"github.com/suPer8Hu/tts-platform/internal/queue"
	"github.com/suPer8Hu/tts-platform/internal/store/dbstore"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Connect("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(gdb))
	return gdb
}

type fakeRenderer struct {
	mu        sync.Mutex
	reqs      []engine.Request
	active    atomic.Int32
	maxActive atomic.Int32

	fail    map[string]error
	panicOn string
	delay   map[string]time.Duration
}

func (f *fakeRenderer) Render(ctx context.Context, req engine.Request) (*engine.Rendered, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	if n > f.maxActive.Load() {
		f.maxActive.Store(n)
	}

	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if req.Text == f.panicOn {
		panic("renderer blew up")
	}
	if err := f.fail[req.Text]; err != nil {
		return nil, err
	}
	if d := f.delay[req.Text]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	format := req.Format
	if format == "" {
		format = audio.FormatWAV
	}
	return &engine.Rendered{
		Audio:           []byte("audio:" + req.Text),
		Format:          format,
		MediaType:       format.MediaType(),
		SampleRate:      24000,
		DurationSeconds: float64(len(req.Text)) / 12,
		Chunks:          1,
	}, nil
}

func (f *fakeRenderer) requests() []engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Request(nil), f.reqs...)
}

func (f *fakeRenderer) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reqs))
	for i, r := range f.reqs {
		out[i] = r.Text
	}
	return out
}

// recordingBroker remembers publish order.
type recordingBroker struct {
	*queue.Memory
	mu        sync.Mutex
	published []string
}

func (b *recordingBroker) Publish(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.Memory.Publish(ctx, id); err != nil {
		return err
	}
	b.published = append(b.published, id)
	return nil
}

func (b *recordingBroker) order() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

type harness struct {
	db       *gorm.DB
	m        *Manager
	repo     *Repo
	broker   *recordingBroker
	blobs    *dbstore.Store
	renderer *fakeRenderer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	gdb := newTestDB(t)
	blobs, err := dbstore.New(gdb)
	require.NoError(t, err)

	h := &harness{
		db:       gdb,
		repo:     NewRepo(gdb),
		broker:   &recordingBroker{Memory: queue.NewMemory()},
		blobs:    blobs,
		renderer: &fakeRenderer{},
	}
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	h.m = NewManager(h.repo, h.broker, h.blobs, h.renderer, opts...)
	return h
}

// startWorker runs the worker until the returned stop func is called.
func (h *harness) startWorker(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("worker did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func (h *harness) submit(t *testing.T, req Request) *Job {
	t.Helper()
	if req.Type == "" {
		req.Type = JobTypeTTS
	}
	job, created, err := h.m.Submit(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func (h *harness) wait(t *testing.T, id string) *Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.m.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, out.Ready)
	return out
}

func ptr(f float64) *float64 { return &f }

package natsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/suPer8Hu/tts-platform/internal/store"
)

// Store keeps artifacts in a JetStream object store bucket.
type Store struct {
	bucket string
	obs    nats.ObjectStore
}

func New(js nats.JetStreamContext, bucket string, ttl time.Duration) (*Store, error) {
	obs, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "TTS job artifacts",
		TTL:         ttl,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		obs, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &Store{bucket: bucket, obs: obs}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.obs.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data), nats.Context(ctx)); err != nil {
		return fmt.Errorf("put %q to bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.obs.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %q from bucket %q: %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("close %q: %w", key, closeErr)
	}
	return data, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.obs.Delete(key); err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("delete %q from bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

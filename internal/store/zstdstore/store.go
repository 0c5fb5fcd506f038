// Package zstdstore compresses artifacts on the way into another store.
package zstdstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/suPer8Hu/tts-platform/internal/store"
)

var frameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type Store struct {
	next    store.BlobStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New wraps next. level is 1 (fastest) to 4 (best compression).
func New(next store.BlobStore, level int) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{next: next, encoder: enc, decoder: dec}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.next.Put(ctx, key, s.encoder.EncodeAll(data, nil))
}

// Get decompresses zstd frames and passes anything else through, so a
// bucket written before compression was enabled stays readable.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, frameMagic) {
		return raw, nil
	}
	out, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %q: %w", key, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}

func (s *Store) Close() {
	_ = s.encoder.Close()
	s.decoder.Close()
}

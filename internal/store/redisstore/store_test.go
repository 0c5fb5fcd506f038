package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/tts-platform/internal/store"
)

func TestStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Put(ctx, "audio/01J", []byte{0x00, 0xff, 'R'}))
	assert.True(t, mr.Exists("tts:artifact:audio/01J"))
	assert.Equal(t, time.Hour, mr.TTL("tts:artifact:audio/01J"))

	got, err := s.Get(ctx, "audio/01J")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 'R'}, got)

	require.NoError(t, s.Delete(ctx, "audio/01J"))
	_, err = s.Get(ctx, "audio/01J")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ref/01J", []byte("voice")))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "ref/01J")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

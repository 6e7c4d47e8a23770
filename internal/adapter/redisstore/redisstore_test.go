package redisstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveauth/internal/domain"
)

// setupTestRedis creates an in-memory Redis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStore_AppendAndList(t *testing.T) {
	_, client := setupTestRedis(t)
	s := New(client, "liveauth:")
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	ref, err := s.AppendSamples(ctx, 3, at, []domain.OrientationSample{
		{Timestamp: at.Add(-time.Second), Pitch: 1.5, Yaw: -2, Roll: 3},
		{Timestamp: at, Pitch: 4, Yaw: 5, Roll: 6.25},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "liveauth:samples:3/"), ref)

	n, err := client.XLen(ctx, "liveauth:samples:3").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	later := at.Add(time.Minute)
	_, err = s.AppendSamples(ctx, 3, later, []domain.OrientationSample{{Timestamp: later, Pitch: 9}})
	require.NoError(t, err)

	got, err := s.ListSamples(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1.5, got[0].Pitch)
	assert.Equal(t, 6.25, got[1].Roll)
	assert.True(t, got[1].RecordedAt.Equal(at))
	assert.True(t, got[2].RecordedAt.Equal(later))
	assert.True(t, got[0].Timestamp.Equal(at.Add(-time.Second)))
}

func TestStore_ListEmpty(t *testing.T) {
	_, client := setupTestRedis(t)
	s := New(client, "")

	got, err := s.ListSamples(context.Background(), 77)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_CorruptEntry(t *testing.T) {
	_, client := setupTestRedis(t)
	s := New(client, "")
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "samples:5",
		Values: []any{"timestamp", "yesterday"},
	}).Err())

	_, err := s.ListSamples(ctx, 5)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	mr, _ := setupTestRedis(t)

	s, err := Open(context.Background(), Options{Addr: mr.Addr(), Prefix: "x:"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	mr.Close()
	_, err = Open(context.Background(), Options{Addr: mr.Addr()})
	assert.Error(t, err)
}

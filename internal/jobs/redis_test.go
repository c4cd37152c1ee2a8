package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	sets      map[string][]byte
	ttls      map[string]time.Duration
	published map[string][][]byte
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string][]byte{}, ttls: map[string]time.Duration{}, published: map[string][][]byte{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.sets[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.sets[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Subscribe(context.Context, ...string) *redis.PubSub { return nil }

func TestRedisPublisherPublishesAndSnapshots(t *testing.T) {
	rdb := newFakeRedis()
	p := NewRedisPublisher(rdb, time.Hour, nil)
	ev := Event{JobID: "job-1", Status: StatusRunning, Completed: 2, Total: 5, At: time.Unix(100, 0).UTC()}

	require.NoError(t, p.Publish(t.Context(), ev))
	require.Len(t, rdb.published["drisya:jobs:job-1:progress"], 1)
	assert.Equal(t, time.Hour, rdb.ttls["drisya:jobs:job-1:snapshot"])

	var wire Event
	require.NoError(t, json.Unmarshal(rdb.published[ChannelKey("job-1")][0], &wire))
	assert.Equal(t, ev, wire)

	snap, ok, err := p.Snapshot(t.Context(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ev, snap)

	_, ok, err = p.Snapshot(t.Context(), "job-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPublisherSurfacesErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	p := NewRedisPublisher(rdb, 0, nil)
	assert.Error(t, p.Publish(t.Context(), Event{JobID: "job-1"}))
	assert.Equal(t, DefaultSnapshotTTL, p.ttl)
}

// TestRedisPublisherSubscribe needs a live server: DRISYA_TEST_REDIS_ADDR=localhost:6379.
func TestRedisPublisherSubscribe(t *testing.T) {
	addr := os.Getenv("DRISYA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DRISYA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(t.Context()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	p := NewRedisPublisher(client, time.Minute, nil)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	events, err := p.Subscribe(ctx, "job-sub")
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, Event{JobID: "job-sub", Status: StatusRunning, Completed: 1, Total: 2}))
	require.NoError(t, p.Publish(ctx, Event{JobID: "job-sub", Status: StatusCompleted, Completed: 2, Total: 2}))

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.True(t, got[1].Final())
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"drisya/internal/infra"
)

// DefaultSnapshotTTL bounds how long the latest event of a job is kept.
const DefaultSnapshotTTL = 24 * time.Hour

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

func ChannelKey(jobID string) string  { return "drisya:jobs:" + jobID + ":progress" }
func SnapshotKey(jobID string) string { return "drisya:jobs:" + jobID + ":snapshot" }

// RedisPublisher fans progress events out over Redis pub/sub and keeps the
// latest one as a snapshot for late subscribers.
type RedisPublisher struct {
	client redisClient
	ttl    time.Duration
	logger *infra.Logger
}

func NewRedisPublisher(client redisClient, ttl time.Duration, logger *infra.Logger) *RedisPublisher {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &RedisPublisher{client: client, ttl: ttl, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	if err := p.client.Set(ctx, SnapshotKey(ev.JobID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelKey(ev.JobID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Snapshot returns the latest event published for jobID.
func (p *RedisPublisher) Snapshot(ctx context.Context, jobID string) (Event, bool, error) {
	data, err := p.client.Get(ctx, SnapshotKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Event{}, false, nil
		}
		return Event{}, false, fmt.Errorf("redis get snapshot: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return ev, true, nil
}

// Subscribe streams events for jobID until ctx is done, the job reaches a
// terminal status, or the subscription closes.
func (p *RedisPublisher) Subscribe(ctx context.Context, jobID string) (<-chan Event, error) {
	ps := p.client.Subscribe(ctx, ChannelKey(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					p.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: dropping undecodable progress event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Final() {
					return
				}
			}
		}
	}()
	return out, nil
}

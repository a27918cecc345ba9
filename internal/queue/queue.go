// Package queue implements the Redis-backed pending/processing handoff
// between the API server and judge workers, plus worker heartbeats and
// queue/system metrics for the admin dashboard.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is the payload enqueued for one submission. RequestedAt lets a
// worker report queue latency on dequeue.
type Job struct {
	SubmissionID int64     `json:"submission_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     string    `json:"language"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Client is the minimal queue interface used by the API server and worker.
// Reserve/Ack implement a visibility-timeout pattern so a job is not lost
// if a worker dies before acking it.
type Client interface {
	Enqueue(ctx context.Context, job Job) error
	Reserve(ctx context.Context, visibility time.Duration) (Job, string, error)
	Ack(ctx context.Context, raw string) error
	RequeueExpired(ctx context.Context, now time.Time) ([]Job, error)
}

// RawClient exposes the subset of go-redis used by metrics and heartbeat
// reporting, kept separate from Client so those callers don't need the
// job-shaped helpers.
type RawClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
}

// RedisQueue implements Client and RawClient over go-redis.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisClient parses redisURL (e.g. redis://localhost:6379/0) and
// validates connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue pushes the job to the head of the pending list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, PendingQueueKey, data).Err()
}

// Reserve moves one job atomically from pending to processing with a
// visibility deadline score (RPOP + ZADD), returning both the decoded job
// and its raw encoding for later Ack. Returns redis.Nil when empty.
func (q *RedisQueue) Reserve(ctx context.Context, visibility time.Duration) (Job, string, error) {
	script := redis.NewScript(`
local v = redis.call('RPOP', KEYS[1])
if v then
  redis.call('ZADD', KEYS[2], ARGV[1], v)
end
return v
`)
	expireScore := float64(time.Now().Add(visibility).UnixMilli())
	res, err := script.Run(ctx, q.client, []string{PendingQueueKey, ProcessingQueueKey}, expireScore).Result()
	if err != nil {
		return Job{}, "", err
	}
	if res == nil {
		return Job{}, "", redis.Nil
	}
	raw, ok := res.(string)
	if !ok {
		return Job{}, "", errors.New("unexpected reserve response type")
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, "", fmt.Errorf("decode job: %w", err)
	}
	return job, raw, nil
}

// Ack removes a processing item after successful (or terminally failed)
// handling.
func (q *RedisQueue) Ack(ctx context.Context, raw string) error {
	return q.client.ZRem(ctx, ProcessingQueueKey, raw).Err()
}

// RequeueExpired moves processing items whose visibility deadline has
// passed back onto pending and returns the moved jobs.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time) ([]Job, error) {
	script := redis.NewScript(`
local vals = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = table.getn(vals)
if count > 0 then
  redis.call('ZREM', KEYS[1], unpack(vals))
  redis.call('LPUSH', KEYS[2], unpack(vals))
end
return vals
`)
	score := float64(now.UnixMilli())
	res, err := script.Run(ctx, q.client, []string{ProcessingQueueKey, PendingQueueKey}, score).Result()
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	rawVals, ok := res.([]interface{})
	if !ok {
		return nil, errors.New("unexpected requeue response type")
	}
	out := make([]Job, 0, len(rawVals))
	for _, v := range rawVals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

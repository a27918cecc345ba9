package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueDepth is the current pending/processing snapshot.
type QueueDepth struct {
	Pending          int64 `json:"pending"`
	Processing       int64 `json:"processing"`
	ExpiredCandidate int64 `json:"expired_candidate"`
}

// MetricsService reads queue depth and worker heartbeats back out of
// Redis for the admin dashboard.
type MetricsService struct {
	redis RawClient
}

func NewMetricsService(redis RawClient) *MetricsService {
	return &MetricsService{redis: redis}
}

func (s *MetricsService) Overview(ctx context.Context) (QueueDepth, []WorkerHeartbeat, error) {
	depth, err := s.Queue(ctx)
	if err != nil {
		return QueueDepth{}, nil, err
	}
	workers, err := s.Workers(ctx)
	if err != nil {
		return depth, nil, err
	}
	return depth, workers, nil
}

// Queue returns pending/processing counts and the number of processing
// entries already past their visibility deadline.
func (s *MetricsService) Queue(ctx context.Context) (QueueDepth, error) {
	now := time.Now().UnixMilli()
	pending, err := s.redis.LLen(ctx, PendingQueueKey).Result()
	if err != nil {
		return QueueDepth{}, err
	}
	processing, err := s.redis.ZCard(ctx, ProcessingQueueKey).Result()
	if err != nil {
		return QueueDepth{}, err
	}
	expired, err := s.redis.ZCount(ctx, ProcessingQueueKey, "-inf", fmt.Sprintf("%d", now)).Result()
	if err != nil {
		return QueueDepth{}, err
	}
	return QueueDepth{Pending: pending, Processing: processing, ExpiredCandidate: expired}, nil
}

// Workers returns every heartbeat currently live in Redis.
func (s *MetricsService) Workers(ctx context.Context) ([]WorkerHeartbeat, error) {
	iter := s.redis.Scan(ctx, 0, WorkerHeartbeatPrefix+"*", 100).Iterator()
	var res []WorkerHeartbeat
	for iter.Next(ctx) {
		val, err := s.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var hb WorkerHeartbeat
		if err := json.Unmarshal([]byte(val), &hb); err != nil {
			continue
		}
		res = append(res, hb)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *MetricsService) WorkerByID(ctx context.Context, id string) (*WorkerHeartbeat, error) {
	val, err := s.redis.Get(ctx, WorkerHeartbeatKey(id)).Result()
	if err != nil {
		return nil, err
	}
	var hb WorkerHeartbeat
	if err := json.Unmarshal([]byte(val), &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

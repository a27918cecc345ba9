package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMetricsServiceQueueDepth(t *testing.T) {
	client := newTestClient(t)
	q := NewRedisQueue(client)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{SubmissionID: 1}))
	require.NoError(t, q.Enqueue(ctx, Job{SubmissionID: 2}))
	_, _, err := q.Reserve(ctx, DefaultVisibilityTimeout)
	require.NoError(t, err)

	m := NewMetricsService(client)
	depth, err := m.Queue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, depth.Pending)
	require.EqualValues(t, 1, depth.Processing)
}

func TestMetricsServiceWorkersRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	hb := WorkerHeartbeat{WorkerID: "w1", Hostname: "host1", Status: "idle", StartedAt: time.Now()}
	require.NoError(t, SaveHeartbeat(ctx, client, hb))

	m := NewMetricsService(client)
	workers, err := m.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.Equal(t, "w1", workers[0].WorkerID)

	got, err := m.WorkerByID(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "idle", got.Status)
}

func TestHeartbeatStateJobLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	s := NewHeartbeatState("w2", "host2", 4)
	s.JobStarted("job-1")
	s.JobFinished("job-1", nil)
	s.flush(ctx, client)

	m := NewMetricsService(client)
	got, err := m.WorkerByID(ctx, "w2")
	require.NoError(t, err)
	require.Equal(t, "idle", got.Status)
	require.EqualValues(t, 1, got.ProcessedTotal)
}

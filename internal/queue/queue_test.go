package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client)
}

func TestEnqueueReserveAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := Job{SubmissionID: 42, ProblemID: 7, Language: "cpp17", RequestedAt: time.Unix(0, 0)}
	require.NoError(t, q.Enqueue(ctx, job))

	got, raw, err := q.Reserve(ctx, DefaultVisibilityTimeout)
	require.NoError(t, err)
	require.Equal(t, job.SubmissionID, got.SubmissionID)
	require.NotEmpty(t, raw)

	require.NoError(t, q.Ack(ctx, raw))

	_, _, err = q.Reserve(ctx, DefaultVisibilityTimeout)
	require.Equal(t, redis.Nil, err)
}

func TestReserveEmptyReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	_, _, err := q.Reserve(context.Background(), DefaultVisibilityTimeout)
	require.Equal(t, redis.Nil, err)
}

func TestRequeueExpiredMovesPastDeadlineJobsBack(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{SubmissionID: 1}))
	_, _, err := q.Reserve(ctx, 1*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	moved, err := q.RequeueExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, moved, 1)
	require.EqualValues(t, 1, moved[0].SubmissionID)

	got, _, err := q.Reserve(ctx, DefaultVisibilityTimeout)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.SubmissionID)
}

func TestRequeueExpiredLeavesFreshJobsAlone(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{SubmissionID: 9}))
	_, _, err := q.Reserve(ctx, 1*time.Hour)
	require.NoError(t, err)

	moved, err := q.RequeueExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, moved)
}

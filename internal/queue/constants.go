package queue

import "time"

const (
	PendingQueueKey    = "intcode:pending_submissions"
	ProcessingQueueKey = "intcode:processing_submissions"

	// DefaultVisibilityTimeout is how long a worker may hold a reserved job
	// before it is eligible for requeue by another worker.
	DefaultVisibilityTimeout = 30 * time.Second
)

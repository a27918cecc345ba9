package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asfrgrtgd/intcode-judge/internal/config"
	"github.com/asfrgrtgd/intcode-judge/internal/httpapi"
	"github.com/asfrgrtgd/intcode-judge/internal/judge"
	"github.com/asfrgrtgd/intcode-judge/internal/obslog"
	"github.com/asfrgrtgd/intcode-judge/internal/queue"
	"github.com/asfrgrtgd/intcode-judge/internal/storage"
	"github.com/asfrgrtgd/intcode-judge/internal/store"
)

const maxRetries = 3

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := obslog.Setup(cfg, "worker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	testcaseStore := storage.New(cfg.TestcaseRoot, cfg.MaxZipExtractBytes)

	redisQueue := queue.NewRedisQueue(redisClient)
	submissionRepo := store.NewPgSubmissionRepository(db)
	problemRepo := store.NewPgProblemRepository(db)

	orchestrator := judge.New(problemRepo, submissionRepo, testcaseStore, cfg.WorkDir,
		time.Duration(cfg.CompileTimeout)*time.Second, time.Duration(cfg.CaseTimeout)*time.Second,
		cfg.OutputLimit, cfg.MaxOutputBytes, cfg.MemoryLimitMB)

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := httpapi.NewWorkerID()
	hostname, _ := os.Hostname()
	log.Printf("worker started. id=%s concurrency=%d queue=%s", workerID, concurrency, queue.PendingQueueKey)

	visibility := queue.DefaultVisibilityTimeout
	reclaimInterval := 15 * time.Second

	state := queue.NewHeartbeatState(workerID, hostname, concurrency)
	go state.Start(ctx, redisClient)

	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jobs, err := redisQueue.RequeueExpired(ctx, time.Now())
				if err != nil {
					log.Printf("[reclaimer] requeue expired error: %v", err)
					continue
				}
				if len(jobs) > 0 {
					log.Printf("[reclaimer] requeued %d expired jobs", len(jobs))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go runWorker(ctx, &wg, i+1, redisQueue, submissionRepo, orchestrator, state, visibility)
	}

	wg.Wait()
}

func runWorker(ctx context.Context, wg *sync.WaitGroup, slot int, redisQueue *queue.RedisQueue,
	submissionRepo *store.PgSubmissionRepository, orchestrator *judge.Orchestrator,
	state *queue.HeartbeatState, visibility time.Duration) {
	defer wg.Done()

	for {
		job, raw, err := redisQueue.Reserve(ctx, visibility)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					continue
				}
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("[worker %d] dequeue error: %v", slot, err)
			time.Sleep(time.Second)
			continue
		}

		jobKey := raw
		log.Printf("[worker %d] received submission %d", slot, job.SubmissionID)
		state.JobStarted(jobKey)

		procErr := process(ctx, job, submissionRepo, orchestrator)
		if procErr != nil {
			if errors.Is(procErr, store.ErrSubmissionNotPending) {
				log.Printf("[worker %d] skip submission %d: already processed", slot, job.SubmissionID)
			} else {
				handleFailure(ctx, slot, job, procErr, submissionRepo, redisQueue)
			}
		}

		if err := redisQueue.Ack(ctx, raw); err != nil {
			log.Printf("[worker %d] ack failed for submission %d: %v", slot, job.SubmissionID, err)
		}
		state.JobFinished(jobKey, procErr)
	}
}

func process(ctx context.Context, job queue.Job, submissionRepo *store.PgSubmissionRepository, orchestrator *judge.Orchestrator) error {
	sub, err := submissionRepo.AcquirePending(ctx, job.SubmissionID)
	if err != nil {
		return err
	}

	result, err := orchestrator.Judge(ctx, judge.SubmissionRequest{
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
		Code:         sub.Code,
		Mode:         judge.ModeSubmit,
		SubmitterID:  sub.UserID,
		SubmissionID: sub.ID,
	})
	if err != nil {
		return err
	}

	if result.OverallStatus != judge.VerdictAC {
		log.Printf("submission %d finished with verdict=%s", job.SubmissionID, result.OverallStatus)
	}
	return nil
}

func handleFailure(ctx context.Context, slot int, job queue.Job, procErr error, submissionRepo *store.PgSubmissionRepository, redisQueue *queue.RedisQueue) {
	retryCount, incErr := submissionRepo.IncrementRetry(ctx, job.SubmissionID)
	if incErr != nil {
		log.Printf("[worker %d] increment retry failed for submission %d: %v", slot, job.SubmissionID, incErr)
	}

	if retryCount <= maxRetries {
		if err := submissionRepo.ResetPending(ctx, job.SubmissionID); err != nil {
			log.Printf("[worker %d] reset pending failed for submission %d: %v", slot, job.SubmissionID, err)
		}
		if err := redisQueue.Enqueue(ctx, job); err != nil {
			log.Printf("[worker %d] re-enqueue submission %d failed: %v", slot, job.SubmissionID, err)
		} else {
			log.Printf("[worker %d] submission %d retried (retry_count=%d)", slot, job.SubmissionID, retryCount)
		}
		return
	}

	if err := submissionRepo.MarkFailed(ctx, job.SubmissionID, procErr.Error()); err != nil {
		log.Printf("[worker %d] final fail save result submission %d: %v", slot, job.SubmissionID, err)
	}
	log.Printf("[worker %d] submission %d failed after retries (retry_count=%d): %v", slot, job.SubmissionID, retryCount, procErr)
}

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"github.com/asfrgrtgd/intcode-judge/internal/config"
	"github.com/asfrgrtgd/intcode-judge/internal/httpapi"
	"github.com/asfrgrtgd/intcode-judge/internal/judge"
	"github.com/asfrgrtgd/intcode-judge/internal/obslog"
	"github.com/asfrgrtgd/intcode-judge/internal/queue"
	"github.com/asfrgrtgd/intcode-judge/internal/storage"
	"github.com/asfrgrtgd/intcode-judge/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logCloser, err := obslog.Setup(cfg, "api.log")
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

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionKey))

	userRepo := store.NewPgUserRepository(db)
	problemRepo := store.NewPgProblemRepository(db)
	submissionRepo := store.NewPgSubmissionRepository(db)
	noticeRepo := store.NewPgNoticeRepository(db)

	authService := httpapi.NewRepositoryAuthService(userRepo)

	if err := httpapi.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	orchestrator := judge.New(problemRepo, submissionRepo, testcaseStore, cfg.WorkDir,
		time.Duration(cfg.CompileTimeout)*time.Second, time.Duration(cfg.CaseTimeout)*time.Second,
		cfg.OutputLimit, cfg.MaxOutputBytes, cfg.MemoryLimitMB)

	redisQueue := queue.NewRedisQueue(redisClient)
	metricsService := queue.NewMetricsService(redisClient)

	router := httpapi.NewRouter(httpapi.Deps{
		Config:        cfg,
		SessionStore:  sessionStore,
		AuthService:   authService,
		RedisClient:   redisClient,
		Users:         userRepo,
		Problems:      problemRepo,
		Submissions:   submissionRepo,
		Notices:       noticeRepo,
		Queue:         redisQueue,
		Metrics:       metricsService,
		Orchestrator:  orchestrator,
		TestcaseStore: testcaseStore,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// cmd/server/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "batch-disburser/internal/api/http"
	"batch-disburser/internal/config"
	"batch-disburser/internal/domain"
	"batch-disburser/internal/infra/etcd"
	"batch-disburser/internal/infra/memory"
	infra_redis "batch-disburser/internal/infra/redis"
	"batch-disburser/internal/infra/workflow"
	"batch-disburser/internal/jobrunner"
	"batch-disburser/internal/queue"
	"batch-disburser/internal/scheduler"
	"batch-disburser/internal/tracing"
	"batch-disburser/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // For local dev, allow all origins
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("batch-disburser-server")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	log.Println("Starting disbursement API server...")

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := uuid.New().String()
	log.Printf("Node ID: %s", nodeID)

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Setup graceful shutdown
	setupGracefulShutdown(cancel)

	// 5. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	log.Println("Connected to etcd.")

	// 6. Session store: Redis when configured, in-process otherwise.
	sessions := memory.NewSessionStore()
	if cfg.RedisAddr != "" {
		rdb, err := infra_redis.NewClient(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		sessions = infra_redis.NewSessionStore(rdb)
		log.Println("Connected to redis.")
	}

	// 7. Instantiate components
	limitStore := etcd.NewRateLimitStore(etcdClient, logger)
	recordRepo := etcd.NewRecordRepository(etcdClient, logger)

	execService := workflow.NewClient(cfg.WorkflowBaseURL, cfg.WorkflowToken, cfg.WorkflowRef)
	runner := jobrunner.New(execService, nil, cfg.SettleDelay, logger)

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	askService := usecase.NewAskService(runner, limitStore, cfg.RateLimit, logger)
	batchService := usecase.NewBatchService(producer, recordRepo, logger)
	authService := usecase.NewAuthService(sessions, cfg.SessionTTL, logger)

	cronScheduler := scheduler.NewCronScheduler(producer, logger)
	leaderManager := etcd.NewLeaderElectionManager(etcdClient, nodeID, cfg.EtcdTimeout, logger)
	schedulerService := usecase.NewSchedulerService(leaderManager, cronScheduler, scheduledBatches(cfg), nodeID, logger)

	apiHandler := http_api.NewHandler(askService, batchService, authService, logger)

	// 8. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	apiHandler.RegisterRoutes(mux)

	// 9. Start SchedulerService
	go func() {
		if err := schedulerService.Start(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Fatalf("SchedulerService stopped with error: %v", err)
		}
	}()

	// 10. Start HTTP API server with CORS middleware
	log.Printf("Starting HTTP API server on %s", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: corsMiddleware(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 11. Block until shutdown
	<-rootCtx.Done()
	log.Println("Shutting down application gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	log.Println("Application shut down.")
}

// scheduledBatches converts the configured recurring batches into
// their domain form.
func scheduledBatches(cfg *config.Config) []*domain.ScheduledBatch {
	batches := make([]*domain.ScheduledBatch, 0, len(cfg.ScheduledBatches))
	for _, sb := range cfg.ScheduledBatches {
		recipients := make([]domain.RecipientTarget, 0, len(sb.Recipients))
		for _, rec := range sb.Recipients {
			recipients = append(recipients, domain.RecipientTarget{Address: rec.Address, Amount: rec.Amount})
		}
		batches = append(batches, &domain.ScheduledBatch{
			Name:     sb.Name,
			CronExpr: sb.CronExpr,
			Request: domain.BatchRequest{
				Name:          sb.Name,
				OperationKind: domain.OperationKind(sb.OperationKind),
				Recipients:    recipients,
			},
		})
	}
	return batches
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}

// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batch-disburser/internal/backoff"
	"batch-disburser/internal/config"
	"batch-disburser/internal/engine"
	"batch-disburser/internal/infra/etcd"
	"batch-disburser/internal/infra/eth"
	"batch-disburser/internal/infra/ses"
	"batch-disburser/internal/infra/workflow"
	"batch-disburser/internal/jobrunner"
	"batch-disburser/internal/queue"
	"batch-disburser/internal/tracing"
	"batch-disburser/internal/usecase"

	"github.com/google/uuid"
)

func main() {
	// 1. Init logger, tracer, config
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("batch-disburser-worker")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workerID := uuid.New().String()
	log.Printf("Starting disbursement worker node %s", workerID)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Setup graceful shutdown
	setupGracefulShutdown(cancel)

	// 4. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	log.Println("Connected to etcd.")

	// 5. Instantiate the remote operation clients. Either side may be
	// left unconfigured; batches of that kind then abort with a fatal
	// report instead of crashing the worker.
	transfers, err := eth.NewTransferClient(rootCtx, cfg.ChainRPCURL, cfg.ChainID, cfg.ChainPrivateKey, logger)
	if err != nil {
		logger.Warn("ledger client unavailable, transfer batches will abort", "error", err)
	}

	execService := workflow.NewClient(cfg.WorkflowBaseURL, cfg.WorkflowToken, cfg.WorkflowRef)
	runner := jobrunner.New(execService, nil, cfg.SettleDelay, logger)
	workflows := jobrunner.NewCompletionRunner(runner, jobrunner.PollPolicy{
		Strategy: backoff.NewConstantWithJitter(cfg.PollInterval),
		MaxWait:  cfg.PollMaxWait,
	})

	initCtx, initCancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer initCancel()
	notifier, err := ses.NewNotifier(initCtx, cfg.ReportFrom, cfg.ReportTo)
	if err != nil {
		log.Fatalf("Failed to create report notifier: %v", err)
	}

	// 6. Assemble the engine and its intake
	limitStore := etcd.NewRateLimitStore(etcdClient, logger)
	recordRepo := etcd.NewRecordRepository(etcdClient, logger)
	locker := etcd.NewLocker(etcdClient)

	eng := engine.New(limitStore, transfers, workflows, notifier, recordRepo, engine.Options{
		Limit:          cfg.RateLimit,
		InterItemDelay: cfg.InterItemDelay,
		BatchDeadline:  cfg.BatchDeadline,
	}, logger)

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup)
	defer consumer.Close()

	workerService := usecase.NewWorkerService(consumer, eng, locker, logger)

	// 7. Consume until shutdown
	if err := workerService.Start(rootCtx); err != nil && rootCtx.Err() == nil {
		log.Fatalf("Worker service stopped with error: %v", err)
	}

	log.Println("Worker node shut down.")
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

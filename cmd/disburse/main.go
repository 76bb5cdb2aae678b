// cmd/disburse/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"batch-disburser/internal/backoff"
	"batch-disburser/internal/config"
	"batch-disburser/internal/domain"
	"batch-disburser/internal/engine"
	"batch-disburser/internal/infra/etcd"
	"batch-disburser/internal/infra/eth"
	"batch-disburser/internal/infra/memory"
	"batch-disburser/internal/infra/ses"
	"batch-disburser/internal/infra/workflow"
	"batch-disburser/internal/jobrunner"
)

// batchFile is the JSON shape accepted by -file.
type batchFile struct {
	Name          string `json:"name"`
	OperationKind string `json:"operation_kind"`
	Recipients    []struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	} `json:"recipients"`
}

func main() {
	filePath := flag.String("file", "", "path to the batch definition JSON file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *filePath == "" {
		log.Fatal("usage: disburse -file <batch.json>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	req, err := loadBatch(*filePath)
	if err != nil {
		log.Fatalf("Failed to load batch definition: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rate limits come from etcd when configured, so a one-shot run
	// shares its counters with the workers. Without etcd the run is
	// standalone and the counters live for this process only.
	limits := memory.NewRateLimitStore()
	if len(cfg.EtcdEndpoints) > 0 {
		etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		limits = etcd.NewRateLimitStore(etcdClient, logger)
	}

	transfers, err := eth.NewTransferClient(ctx, cfg.ChainRPCURL, cfg.ChainID, cfg.ChainPrivateKey, logger)
	if err != nil {
		logger.Warn("ledger client unavailable, transfer batches will abort", "error", err)
	}

	execService := workflow.NewClient(cfg.WorkflowBaseURL, cfg.WorkflowToken, cfg.WorkflowRef)
	runner := jobrunner.New(execService, nil, cfg.SettleDelay, logger)
	workflows := jobrunner.NewCompletionRunner(runner, jobrunner.PollPolicy{
		Strategy: backoff.NewConstantWithJitter(cfg.PollInterval),
		MaxWait:  cfg.PollMaxWait,
	})

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	defer initCancel()
	notifier, err := ses.NewNotifier(initCtx, cfg.ReportFrom, cfg.ReportTo)
	if err != nil {
		log.Fatalf("Failed to create report notifier: %v", err)
	}

	eng := engine.New(limits, transfers, workflows, notifier, nil, engine.Options{
		Limit:          cfg.RateLimit,
		InterItemDelay: cfg.InterItemDelay,
		BatchDeadline:  cfg.BatchDeadline,
	}, logger)

	result, err := eng.Execute(ctx, req)
	if err != nil {
		logger.Error("batch aborted", "batch_id", result.BatchID, "error", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if result.Overall == domain.BatchFatalError {
		os.Exit(1)
	}
}

func loadBatch(path string) (*domain.BatchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bf batchFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("invalid batch definition: %w", err)
	}

	recipients := make([]domain.RecipientTarget, 0, len(bf.Recipients))
	for _, rec := range bf.Recipients {
		recipients = append(recipients, domain.RecipientTarget{Address: rec.Address, Amount: rec.Amount})
	}

	return &domain.BatchRequest{
		Name:          bf.Name,
		OperationKind: domain.OperationKind(bf.OperationKind),
		Recipients:    recipients,
	}, nil
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/extraction"
	"github.com/fyrsmithlabs/snippetd/internal/gitrepo"
	"github.com/fyrsmithlabs/snippetd/internal/pipeline"
	"github.com/fyrsmithlabs/snippetd/internal/queue"
	"github.com/fyrsmithlabs/snippetd/internal/telemetry"
	"github.com/fyrsmithlabs/snippetd/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingest worker",
	Long: `Run the ingest worker daemon. It consumes ingest jobs from the queue,
clones repositories, extracts snippets, and stores them in the vector store.
Runs until interrupted.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tel, err := telemetry.New(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	q, err := queue.Connect(cfg.Queue, log)
	if err != nil {
		return err
	}
	defer q.Close()

	store, err := newVectorStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	extractor, err := extraction.New(cfg.Extraction, log)
	if err != nil {
		return err
	}

	fetcher := gitrepo.NewCloneFetcher(log)
	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)
	orchestrator := pipeline.New(extractor, metrics, log)

	w := worker.New(status, fetcher, cfg.Loader, orchestrator, store, cfg.Worker, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started",
		zap.String("stream", cfg.Queue.Stream),
		zap.String("subject", cfg.Queue.Subject),
		zap.Int("concurrency", cfg.Worker.Concurrency))

	err = q.Consume(ctx, w.ProcessJob)
	if errors.Is(err, context.Canceled) {
		log.Info("worker stopped")
		return nil
	}
	return err
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anshultibby/pocket-fashion/internal/bootstrap"
	"github.com/anshultibby/pocket-fashion/internal/config"
	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/observability/logging"
	"github.com/anshultibby/pocket-fashion/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	logger := logging.New(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeReprocess(ctx, func(handlerCtx context.Context, job domain.ReprocessJob) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		jobLogger := logging.ForItem(logger, job.UserID, job.ItemID)
		jobLogger.Info("reprocess job started")

		workerMetrics.StartJob()
		start := time.Now()
		_, err := app.IngestUC.ReprocessItem(jobCtx, job.UserID, job.ItemID)
		workerMetrics.FinishJob(service, time.Since(start), err)
		if err != nil {
			jobLogger.Error("reprocess job failed", "error", err)
			return err
		}
		jobLogger.Info("reprocess job finished", "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

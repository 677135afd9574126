package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/anshultibby/pocket-fashion/internal/adapters/http"
	"github.com/anshultibby/pocket-fashion/internal/bootstrap"
	"github.com/anshultibby/pocket-fashion/internal/config"
	"github.com/anshultibby/pocket-fashion/internal/observability/logging"
)

const service = "api"

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

	router := httpadapter.NewRouter(httpadapter.RouterDeps{
		Ingestor:        app.IngestUC,
		Aggregator:      app.AggregateUC,
		Store:           app.Store,
		Queue:           app.Queue,
		Auth:            httpadapter.NewAuthenticator(cfg.JWTSecret, app.Users, logger),
		UploadRateRPS:   cfg.UploadRateRPS,
		UploadRateBurst: cfg.UploadRateBurst,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		Metrics:         app.Metrics,
		Service:         service,
		Logger:          logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.Handle("/", router.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      app.Metrics.Middleware(service, mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}

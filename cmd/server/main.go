package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/app"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/webhook"
)

func main() {
	log.Println("Starting outreach engine API server...")

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			path = "config/config.yaml"
		}
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	ingester, err := a.Ingester(ctx)
	if err != nil {
		log.Fatalf("Failed to build webhook ingester: %v", err)
	}
	s3Client, err := a.S3(ctx)
	if err != nil {
		log.Fatalf("Failed to build S3 client: %v", err)
	}

	router := api.NewRouter(api.Routes{
		Handlers:       api.NewHandlers(a.Engine),
		Health:         api.NewHealthChecker(a.DB, a.Redis, s3Client, cfg.Webhooks.ArchiveBucket),
		Webhooks:       webhook.NewHandler(ingester),
		Metrics:        a.Metrics.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

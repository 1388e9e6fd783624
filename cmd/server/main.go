package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/gate"
	"github.com/your-org/facegate/internal/ingest"
	"github.com/your-org/facegate/internal/notify"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/pipeline"
	"github.com/your-org/facegate/internal/source"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := store.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(context.Background()); err != nil {
		slog.Error("init schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	media, err := storage.NewMediaStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := media.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	publisher, err := notify.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	if err := publisher.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Detectors. Rekognition resolves trained names through the train table.
	lookup := func(faceID string) (string, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		name, ok, err := db.FaceNameByID(ctx, faceID)
		if err != nil {
			slog.Warn("face id lookup", "error", err)
			return "", false
		}
		return name, ok
	}
	adapters := detector.FromConfig(cfg.Detectors, cfg.Detect.ForCamera, lookup)
	if len(adapters) == 0 {
		slog.Warn("no detectors configured, events will be dropped")
	}
	for _, a := range adapters {
		if r, ok := a.(*detector.Rekognition); ok {
			if err := r.EnsureCollection(context.Background()); err != nil {
				slog.Warn("ensure rekognition collection", "error", err)
			}
		}
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	src := source.New(cfg.Source)
	g := gate.New(cfg.Source, src)
	pipe := pipeline.New(g, adapters, cfg.Detect, src, db, media, publisher, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start event consumer
	consumer, err := ingest.NewConsumer(cfg.NATS.URL, publisher)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if err := consumer.ConsumeEvents(ctx, "facegate-events", pipe, workers); err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:          cfg.Server.APIKey,
		DB:              db,
		Media:           media,
		Publisher:       publisher,
		Hub:             hub,
		Adapters:        adapters,
		Reprocessor:     pipe,
		PaginationLimit: cfg.UI.PaginationLimit,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

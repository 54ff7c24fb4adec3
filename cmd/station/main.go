// Station content server — runs the production pipeline workers and the HTTP
// API for ingestion, retrieval, and the playout feed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aetherfm/station/pkg/api"
	"github.com/aetherfm/station/pkg/blob"
	"github.com/aetherfm/station/pkg/chunker"
	"github.com/aetherfm/station/pkg/cleanup"
	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/database"
	"github.com/aetherfm/station/pkg/embedding"
	"github.com/aetherfm/station/pkg/events"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/orchestrator"
	"github.com/aetherfm/station/pkg/retrieval"
	"github.com/aetherfm/station/pkg/scriptgen"
	"github.com/aetherfm/station/pkg/services"
	"github.com/aetherfm/station/pkg/tts"
	"github.com/aetherfm/station/pkg/version"
	"github.com/aetherfm/station/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolveInstanceID determines the instance identifier used as the lease-owner
// prefix. Priority: INSTANCE_ID env > HOSTNAME env > "local"
func resolveInstanceID() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	// .env is loaded, so LOG_LEVEL from either source takes effect here.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})))

	httpPort := getEnv("HTTP_PORT", "8080")
	instanceID := resolveInstanceID()

	slog.Info("Starting station",
		"version", version.Full(),
		"http_port", httpPort,
		"instance_id", instanceID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	pool := dbClient.Pool()

	// 3. Job store and one-time startup orphan cleanup
	store := jobstore.NewStore(pool, cfg.Queue)
	workerTypes := []string{models.JobTypeKBIndex, models.JobTypeSegmentMake, models.JobTypeAudioFinalize}
	for _, wt := range workerTypes {
		if err := store.ReclaimOwn(ctx, instanceID+"/"+wt); err != nil {
			slog.Error("Failed to reclaim startup orphans", "worker_type", wt, "error", err)
			// Non-fatal — the reaper catches them on lease expiry
		}
	}

	// 4. Notify listener (dedicated pgx connection for LISTEN)
	listener := events.NewListener(dbConfig.DSN())
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notify listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)

	// 5. Reaper for stale leases
	reaper := jobstore.NewReaper(store, cfg.Queue.ReaperInterval)
	reaper.Start(ctx)
	defer reaper.Stop()

	// 6. Domain services
	segmentService := services.NewSegmentService(pool)
	assetService := services.NewAssetService(pool)
	kbService := services.NewKBService(pool)
	toneService := services.NewToneService(pool)
	healthService := services.NewHealthService(pool)
	slog.Info("Services initialized")

	cleanupService := cleanup.NewService(cfg.Retention, segmentService, store)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 7. External clients
	embedService, err := embedding.NewService(embedding.NewClient(cfg.Embedding), cfg.Embedding)
	if err != nil {
		slog.Error("Failed to initialize embedding service", "error", err)
		os.Exit(1)
	}
	ttsClient := tts.NewClient(cfg.TTS)
	generator := scriptgen.NewGenerator(scriptgen.NewClaudeClient(cfg.Generation), cfg.Generation)
	retrievalService := retrieval.NewService(pool, embedService, cfg.Retrieval)

	blobStore, err := blob.NewStore(ctx, os.Getenv("BLOB_BUCKET"))
	if err != nil {
		slog.Error("Failed to initialize blob store", "error", err)
		os.Exit(1)
	}
	slog.Info("External clients initialized",
		"embedding_url", cfg.Embedding.URL, "tts_url", cfg.TTS.URL, "model", cfg.Generation.Model)

	// 8. Worker runtimes, one per pipeline stage
	kbHandler := orchestrator.NewKBIndexHandler(kbService, chunker.New(cfg.Chunker), embedService)
	makeHandler := orchestrator.NewSegmentMakeHandler(segmentService, assetService, toneService,
		retrievalService, generator, ttsClient, blobStore, store, cfg.Generation, cfg.TTS)
	finalizeHandler := orchestrator.NewAudioFinalizeHandler(segmentService, assetService, blobStore, cfg.Mastering)

	runtimes := []*worker.Runtime{
		worker.NewRuntime(models.JobTypeKBIndex, instanceID, store, listener, healthService, cfg.Queue, kbHandler),
		worker.NewRuntime(models.JobTypeSegmentMake, instanceID, store, listener, healthService, cfg.Queue, makeHandler),
		worker.NewRuntime(models.JobTypeAudioFinalize, instanceID, store, listener, healthService, cfg.Queue, finalizeHandler),
	}
	for _, rt := range runtimes {
		if err := rt.Start(ctx); err != nil {
			slog.Error("Failed to start worker runtime", "error", err)
			os.Exit(1)
		}
	}

	// 9. HTTP server
	apiServer := api.NewServer(pool, segmentService, assetService, kbService, toneService,
		healthService, retrievalService, store, blobStore, cfg.Playout)

	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: apiServer.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Station started successfully", "instance_id", instanceID)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop taking HTTP requests, then drain workers.
	// Deferred stops handle the reaper, listener, and database.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	for _, rt := range runtimes {
		rt.Stop()
	}

	slog.Info("Shutdown complete")
}

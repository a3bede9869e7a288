package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liviaellen/voice-sense-hardware/internal/analysis"
	"github.com/liviaellen/voice-sense-hardware/internal/archive"
	"github.com/liviaellen/voice-sense-hardware/internal/config"
	"github.com/liviaellen/voice-sense-hardware/internal/inference"
	"github.com/liviaellen/voice-sense-hardware/internal/ingest"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
	"github.com/liviaellen/voice-sense-hardware/internal/notify"
	"github.com/liviaellen/voice-sense-hardware/internal/scheduler"
	"github.com/liviaellen/voice-sense-hardware/internal/server"
	"github.com/liviaellen/voice-sense-hardware/internal/stats"
	"github.com/liviaellen/voice-sense-hardware/internal/trigger"
	"github.com/liviaellen/voice-sense-hardware/internal/vad"
)

const (
	serviceName    = "voice-emotion-analysis"
	serviceVersion = "1.0.0"
)

// CLI defines the command-line interface
type CLI struct {
	Config  string `short:"c" default:"configs/config.yaml" help:"Path to configuration file"`
	EnvFile string `name:"env-file" default:".env" help:"Optional dotenv file with API credentials"`
	Version bool   `short:"v" help:"Show version information"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("voice-emotion-server"),
		kong.Description("Voice emotion analysis service for wearable audio"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("%s %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	// Load .env before config so credentials reach ApplyEnv
	envLoaded := godotenv.Load(cli.EnvFile) == nil

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", cli.Config),
		slog.Bool("env_file_loaded", envLoaded),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("spool_dir", cfg.Audio.SpoolDir),
		slog.Int64("limit_ms", cfg.Analysis.LimitMS),
		slog.Int64("chunk_ms", cfg.Analysis.ChunkMS),
		slog.Bool("speech_gate", cfg.Analysis.SpeechGate.Enabled),
		slog.String("inference_endpoint", cfg.Inference.Endpoint),
		slog.Bool("hume_configured", cfg.Inference.APIKey != ""),
		slog.Bool("omi_configured", cfg.Notify.AppID != "" && cfg.Notify.APIKey != ""),
		slog.Bool("gcs_configured", cfg.Storage.Bucket != ""),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Inference client is optional: requests fail with a configuration error without it
	var inferer analysis.Inferer
	var inferenceStats server.InferenceStats
	client, err := inference.NewClient(inference.Config{
		Endpoint:      cfg.Inference.Endpoint,
		APIKey:        cfg.Inference.APIKey,
		Timeout:       cfg.Inference.GetTimeoutDuration(),
		MaxConcurrent: cfg.Inference.MaxConcurrent,
	}, logger, appMetrics)
	if err != nil {
		logger.Warn("Emotion inference disabled", slog.String("error", err.Error()))
	} else {
		inferer = client
		inferenceStats = client
	}

	var gate *vad.Processor
	var gateStats server.SpeechGateStats
	if cfg.Analysis.SpeechGate.Enabled {
		gate, err = vad.NewProcessor(cfg.Analysis.SpeechGate.Threshold, cfg.Analysis.SpeechGate.FrameSize)
		if err != nil {
			logger.Error("Failed to create speech gate", slog.String("error", err.Error()))
			os.Exit(1)
		}
		gateStats = gate
	}

	windower := analysis.NewWindower(analysis.Config{
		LimitMS:              cfg.Analysis.LimitMS,
		ChunkMS:              cfg.Analysis.ChunkMS,
		MaxConcurrentWindows: cfg.Analysis.MaxConcurrentWindows,
		MaxTextChars:         cfg.Inference.MaxTextChars,
	}, inferer, gate, logger, appMetrics)

	settings := trigger.NewStore(cfg.Triggers.ConfigFile, os.Getenv, logger)
	logger.Info("Notification settings loaded",
		slog.String("source", settings.Source()),
		slog.Bool("notification_enabled", settings.Get().NotificationEnabled),
	)

	notifier := notify.NewClient(notify.Config{
		BaseURL: cfg.Notify.BaseURL,
		AppID:   cfg.Notify.AppID,
		APIKey:  cfg.Notify.APIKey,
		Timeout: cfg.Notify.GetTimeoutDuration(),
	}, logger, appMetrics)

	spool, err := archive.NewSpool(cfg.Audio.SpoolDir, logger)
	if err != nil {
		logger.Error("Failed to create audio spool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var uploader archive.Uploader
	var gcs *archive.GCSUploader
	if cfg.Storage.Bucket != "" {
		gcs, err = archive.NewGCSUploader(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsJSON, logger, appMetrics)
		if err != nil {
			logger.Warn("Cloud storage archive disabled", slog.String("error", err.Error()))
		} else {
			uploader = gcs
		}
	}

	service, err := ingest.NewService(ingest.Options{
		Analyzer:   windower,
		Notifier:   notifier,
		Settings:   settings,
		Spool:      spool,
		Uploader:   uploader,
		Stats:      stats.NewRecorder(),
		MaxFileAge: cfg.Jobs.GetMaxFileAge(),
		Logger:     logger,
		Metrics:    appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create ingest service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Background jobs
	jobs := scheduler.New(logger, appMetrics)
	for _, job := range []scheduler.Job{
		{Name: "emotion-memory", Interval: cfg.Jobs.GetMemoryInterval(), Run: service.MemoryJob},
		{Name: "audio-cleanup", Interval: cfg.Jobs.GetCleanupInterval(), Run: service.CleanupJob},
	} {
		if err := jobs.Add(job); err != nil {
			logger.Error("Failed to register job", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	jobs.Start(ctx)

	if cfg.Triggers.Watch {
		if err := settings.Watch(ctx); err != nil {
			logger.Warn("Notification settings will not be reloaded", slog.String("error", err.Error()))
		}
	}

	httpServer := server.NewHTTPServer(server.Options{
		Config:     cfg,
		Service:    service,
		Settings:   settings,
		Inference:  inferenceStats,
		SpeechGate: gateStats,
		Metrics:    appMetrics,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     logger,
	})

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	cancel()
	jobs.Stop()

	if gcs != nil {
		if err := gcs.Close(); err != nil {
			logger.Error("Error closing storage client", slog.String("error", err.Error()))
		}
	}

	snapshot := service.Stats().Snapshot()
	logger.Info("Final service statistics",
		slog.Int("total_requests", snapshot.TotalRequests),
		slog.Int("successful_analyses", snapshot.SuccessfulAnalyses),
		slog.Int("failed_analyses", snapshot.FailedAnalyses),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

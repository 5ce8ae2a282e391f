package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatscrm/internal/config"
	"whatscrm/internal/constants"
	"whatscrm/internal/database"
	"whatscrm/internal/features"
	"whatscrm/internal/models"
	"whatscrm/internal/retry"
	"whatscrm/internal/service"
	"whatscrm/internal/tracing"
	"whatscrm/pkg/bridge"
	"whatscrm/pkg/webhook"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Set by -ldflags at release build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	verbose     = flag.Bool("verbose", false, "Log at debug level (message payloads and contact details appear in logs)")
	configPath  = flag.String("config", "config.json", "Path to the JSON configuration file")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("whatscrm %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("whatscrm: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting whatscrm")

	// Secrets may live in a local .env during development; a missing file
	// is fine, the environment is already set in deployed installs.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel)

	// Feature flags load before anything consults them: config file
	// overrides defaults, environment overrides both.
	features.Initialize()
	if len(cfg.Features.Flags) > 0 {
		if err := features.Default().LoadFromConfig(features.FlagsConfig{Flags: cfg.Features.Flags}); err != nil {
			logger.Warnf("Failed to load feature flags from config: %v", err)
		}
	}
	features.Default().LoadFromEnvironment()
	if overrides := features.EnvironmentOverrides(); len(overrides) > 0 {
		logger.WithField("overrides", overrides).Info("Feature flags overridden from environment")
	}

	defer startTracing(ctx, cfg, logger)()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, err := service.NewConnectionRegistry(cfg.Connections)
	if err != nil {
		return fmt.Errorf("failed to build connection registry: %w", err)
	}
	logger.WithField("connections", registry.Count()).Info("Connection registry initialized")

	directory := service.NewContactDirectory(db, constants.DefaultContactCacheHours, logger)
	leads := service.NewLeadResolver(db, logger)
	conversations := service.NewConversationResolver(db, logger)
	ledger := service.NewMessageLedger(db, logger)
	statuses := service.NewStatusReconciler(db, logger)

	var hub *service.WSHub
	if features.IsEnabled(features.FlagLiveFeed) {
		hub = service.NewWSHub(logger)
	} else {
		logger.Info("Live feed disabled, websocket endpoint will not be registered")
	}

	// The dispatch client is created even when the target list starts
	// empty: the config watcher can add targets at runtime and Send is a
	// no-op until it does.
	maxAttempts := cfg.Dispatch.MaxAttempts
	if !features.IsEnabled(features.FlagDispatchRetries) {
		maxAttempts = 1
	}
	dispatchBackoff := retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  maxAttempts,
		Jitter:       true,
	}
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Dispatch.TimeoutSec) * time.Second,
	}
	sender := webhook.NewClient(dispatchTargets(cfg), httpClient, dispatchBackoff, logger)
	if len(cfg.Dispatch.Targets) > 0 {
		logger.WithField("targets", len(cfg.Dispatch.Targets)).Info("Integration dispatch initialized")
	}

	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnChange(func(newCfg *models.Config) {
		sender.UpdateTargets(dispatchTargets(newCfg))
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.Warnf("Configuration watcher failed to start: %v", err)
		}
	}()

	// A nil *WSHub must not become a non-nil interface inside the
	// dispatcher, so the assignment is guarded.
	var broadcaster service.EventBroadcaster
	if hub != nil {
		broadcaster = hub
	}
	dispatcher := service.NewDispatcher(sender, broadcaster, time.Duration(cfg.Dispatch.TimeoutSec)*time.Second, logger)

	ingest := service.NewIngestService(registry, leads, conversations, ledger, statuses, directory, dispatcher, logger)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, time.Duration(cfg.Server.CleanupIntervalHours)*time.Hour, logger)
	go scheduler.Start(ctx)

	if features.IsEnabled(features.FlagCampaignMonitor) {
		checkInterval := time.Duration(cfg.Monitor.CheckIntervalMin) * time.Minute
		staleThreshold := time.Duration(cfg.Monitor.StaleThresholdMin) * time.Minute
		monitor := service.NewCampaignMonitor(db, checkInterval, staleThreshold, logger)
		go monitor.Start(ctx)
		defer monitor.Stop()
		logger.WithField("interval", checkInterval).Info("Campaign delivery monitor started")
	}

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)

	if cfg.Bridge.Enabled {
		br := bridge.New(bridge.Config{
			NumberID:    cfg.Bridge.NumberID,
			StorePath:   cfg.Bridge.StorePath,
			HistorySync: cfg.Bridge.HistorySync && features.IsEnabled(features.FlagHistoryBackfill),
			LogLevel:    cfg.Bridge.LogLevel,
		}, ingest, logger)

		br.OnPaired(func(numberID, displayName string) {
			registry.RegisterQR(numberID, displayName)
			logger.WithFields(logrus.Fields{
				"numberId":    numberID,
				"displayName": displayName,
			}).Info("Linked device paired")
		})

		if err := br.Start(ctxWithVerbose); err != nil {
			logger.Warnf("Failed to start WhatsApp bridge: %v. QR ingestion is unavailable until restart.", err)
		} else {
			defer br.Stop()
		}
	}

	server := NewServer(cfg, registry, ingest, db, hub, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// applyLogLevel maps the configured level onto the logger. The -verbose
// flag forces debug; without it the config may choose a quieter level,
// but debug and trace stay behind the flag because they log payloads.
func applyLogLevel(logger *logrus.Logger, configured string) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled, message payloads will appear in logs")
		return
	}

	logger.SetLevel(logrus.InfoLevel)
	if configured == "" {
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Unknown log level %q, using info", configured)
		return
	}
	if level < logrus.InfoLevel {
		logger.SetLevel(level)
	}
}

// startTracing wires the OTLP exporter and returns the flush hook the
// caller defers. Tracing failures never block ingestion, so both setup
// and teardown only warn.
func startTracing(ctx context.Context, cfg *models.Config, logger *logrus.Logger) func() {
	manager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled && features.IsEnabled(features.FlagDistributedTracing),
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := manager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	return func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shut down tracing: %v", err)
		}
	}
}

// openDatabase opens the store with backoff. Another instance shutting
// down can hold the file lock for a few seconds.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path)
		if openErr != nil {
			logger.Warnf("Failed to open database: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database after retries: %w", err)
	}
	return db, nil
}

func validateConfig(cfg *models.Config) error {
	if len(cfg.Connections) == 0 {
		return fmt.Errorf("at least one connection is required")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// dispatchTargets flattens the configured dispatch block into webhook
// targets. All targets share the one dispatch signing secret.
func dispatchTargets(cfg *models.Config) []webhook.Target {
	targets := make([]webhook.Target, 0, len(cfg.Dispatch.Targets))
	for _, t := range cfg.Dispatch.Targets {
		targets = append(targets, webhook.Target{
			Name:   t.Name,
			URL:    t.URL,
			Secret: cfg.Dispatch.Secret,
		})
	}
	return targets
}

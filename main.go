package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stega_backend/api"
	"stega_backend/core"
	"stega_backend/core/validation"
	"stega_backend/db"
	"stega_backend/logging"
	"stega_backend/metrics"
	"stega_backend/packet"
	"stega_backend/shutdown"
	"stega_backend/stegamodel"
	"stega_backend/watermark"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/kardianos/service"
	"go.uber.org/zap"
)

const envFile = ".env"

func main() {
	if handled, code := runCommand(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); handled {
		os.Exit(code)
	}

	if !service.Interactive() {
		if err := RunAsService(); err != nil {
			fmt.Fprintf(os.Stderr, "Service failed: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	os.Exit(run(nil))
}

// run starts the watermark server and blocks until a signal arrives or
// stop is closed. It returns the process exit code.
func run(stop <-chan struct{}) int {
	if err := godotenv.Load(envFile); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: %s not loaded: %v\n", envFile, err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return core.ExitCodeConfig
	}

	logger, err := logging.NewLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer logger.Sync()

	if code := runStartupValidation(logger, cfg); code != core.ExitCodeSuccess {
		return code
	}

	logger.Info("Configuration loaded",
		zap.String("addr", cfg.Addr()),
		zap.String("models_dir", cfg.ModelsDir),
		zap.String("model_dir", cfg.ModelDir),
		zap.String("serving_url", cfg.ServingURL),
		zap.Duration("serving_timeout", cfg.ServingTimeout),
		zap.String("max_upload", core.FormatBytes(cfg.MaxUploadBytes)),
		zap.Int64("max_image_pixels", cfg.MaxImagePixels),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
		zap.Bool("history_enabled", cfg.HistoryEnabled),
		zap.Bool("debug_save", cfg.DebugSave),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	manager := shutdown.NewManager(logger.Zap(), shutdown.WithTimeout(cfg.ShutdownTimeout))

	a, err := newApp(cfg, logger, manager)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		manager.Trigger()
		manager.Shutdown()
		return core.ExitCodeError
	}

	manager.Start()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Watermark server listening", zap.String("addr", cfg.Addr()))
		if err := a.server.Start(manager.Context()); err != nil {
			serverErr <- err
			manager.Trigger()
		}
	}()

	if stop != nil {
		go func() {
			select {
			case <-stop:
				logger.Info("Stop requested by service manager")
				manager.Trigger()
			case <-manager.Context().Done():
			}
		}()
	}

	manager.Wait()

	code := core.ExitCodeSuccess
	select {
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		code = core.ExitCodeError
	default:
	}

	if err := manager.Shutdown(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
		code = core.ExitCodeError
	}
	logger.Info("Goodbye!", zap.String("exit_code", core.ExitCodeName(code)))
	return code
}

// runStartupValidation runs the startup checks. Warnings are logged; a
// failed check stops startup with ExitCodeConfig.
func runStartupValidation(logger *logging.Logger, cfg *core.Config) int {
	logger.Info("Starting startup validation...")

	result := validation.NewValidationSuite(cfg).
		WithEnvPath(envFile).
		WithTimeout(5 * time.Second).
		WithShowProgress(logger.IsDevelopment() || service.Interactive()).
		Validate()

	for _, step := range result.Steps {
		switch step.Status {
		case validation.StepFailed:
			logger.Error("Validation step failed",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error),
			)
		case validation.StepWarning:
			logger.Warn("Validation step warning",
				zap.String("step", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error),
			)
		}
	}

	if !result.Success {
		logger.Error("Configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		return core.ExitCodeConfig
	}

	logger.Info("Configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}

// app holds the long-lived components of a running server.
type app struct {
	server *api.Server
	store  *metrics.Store
	probe  *metrics.ServingProbe
	svc    *watermark.Service
}

// newApp builds every component and registers its shutdown handler with
// manager. Handlers registered before a failure still run on Shutdown.
func newApp(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*app, error) {
	a := &app{
		store: metrics.NewStore(metrics.StoreConfig{
			HistoryCapacity: metrics.DefaultStoreConfig().HistoryCapacity,
			Version:         core.Version,
		}, time.Now()),
	}

	manager.Register("logger", shutdown.PriorityLogger, func(ctx context.Context) error {
		// stdout/stderr sync fails on some platforms; nothing to act on.
		logger.Sync()
		return nil
	})

	if cfg.DebugSave {
		cleanup := shutdown.CleanupPartialFiles(logger.Zap(), cfg.TmpDir)
		cleanup(context.Background())
		manager.Register("partial-files", shutdown.PriorityTempFiles, cleanup)
	}

	history, err := openHistory(cfg, logger, manager)
	if err != nil {
		return nil, err
	}

	loader, err := stegamodel.NewServingLoader(stegamodel.ServingConfig{
		BaseURL:    cfg.ServingURL,
		HTTPClient: core.GetHTTPClient(cfg, cfg.ServingTimeout),
		Timeout:    cfg.ServingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("model backend: %w", err)
	}

	codec, err := packet.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("packet codec: %w", err)
	}

	a.svc, err = watermark.New(loader, codec, watermark.WithLogger(logger.Named("watermark")))
	if err != nil {
		return nil, fmt.Errorf("watermark service: %w", err)
	}
	manager.Register("model", shutdown.PriorityModel, func(ctx context.Context) error {
		return a.svc.Close()
	})

	a.server, err = api.NewServer(api.NewServerConfig(cfg), api.Dependencies{
		Watermark: a.svc,
		Metrics:   a.store,
		History:   history,
		Gate:      manager,
	}, logger.Zap().Named("api"))
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	manager.Register("http-server", shutdown.PriorityHTTPServer, a.server.Shutdown)

	probeConfig := metrics.DefaultServingProbeConfig(cfg.ServingURL)
	a.probe = metrics.NewServingProbe(probeConfig, metrics.HTTPProber{
		URL:    cfg.ServingURL,
		Client: core.GetHTTPClient(cfg, probeConfig.Timeout),
	}, a.onServingStatus(logger))
	a.probe.Start()
	manager.Register("serving-probe", shutdown.PriorityWorkers, func(ctx context.Context) error {
		a.probe.Stop()
		return nil
	})

	manager.Register("metrics", shutdown.PriorityEvents, func(ctx context.Context) error {
		a.store.MarkStopped()
		return nil
	})

	return a, nil
}

// onServingStatus records each probe result and pushes it to event
// subscribers. Reachability changes are logged.
func (a *app) onServingStatus(logger *logging.Logger) func(metrics.ServingStatus) {
	return func(status metrics.ServingStatus) {
		previous := a.store.GetServingStatus()
		a.store.UpdateServingStatus(status)

		if previous.LastCheck.IsZero() || previous.Reachable != status.Reachable {
			if status.Reachable {
				logger.Info("Model server reachable",
					zap.String("url", status.URL),
					zap.Duration("latency", status.Latency),
				)
			} else {
				logger.Warn("Model server unreachable",
					zap.String("url", status.URL),
					zap.String("error", status.Error),
				)
			}
		}

		if a.server != nil {
			a.server.Events().PublishServingStatus(status)
			a.server.Events().PublishSystemStatus(a.store.GetSystemStatus())
		}
	}
}

// openHistory opens the operation history database and starts its
// writer and retention scheduler. It returns nil when history is off.
func openHistory(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*db.Repository, error) {
	if !cfg.HistoryEnabled {
		logger.Info("Operation history disabled")
		return nil, nil
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	repo := db.NewRepository(database, nil)
	writer := repo.EnableAsync(db.AsyncWriterConfig{
		ChannelCapacity: db.DefaultChannelCapacity,
		OnError: func(op db.WriteOperation, err error) {
			logger.Warn("History write failed", zap.Error(err))
		},
	})

	cleanupDone := database.StartCleanupScheduler(manager.Context(), db.CleanupSchedulerConfig{
		RetentionDays: cfg.HistoryRetentionDays,
		Interval:      24 * time.Hour,
		OnCleanup: func(result db.CleanupResult, err error) {
			if err != nil {
				logger.Warn("History cleanup failed", zap.Error(err))
				return
			}
			if result.Deleted > 0 {
				logger.Info("History cleanup complete",
					zap.Int64("deleted", result.Deleted),
					zap.Bool("vacuumed", result.Vacuumed),
					zap.Duration("duration", result.Duration),
				)
			}
		},
	})

	manager.Register("history-writer", shutdown.PriorityHistory, func(ctx context.Context) error {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !writer.StopWithTimeout(timeout) {
			return fmt.Errorf("history writer did not drain, %d writes pending", writer.Pending())
		}
		return nil
	})
	manager.Register("database", shutdown.PriorityDatabase, func(ctx context.Context) error {
		select {
		case <-cleanupDone:
		case <-ctx.Done():
		}
		return database.Close()
	})

	logger.Info("Operation history enabled",
		zap.String("path", database.Path()),
		zap.Int("retention_days", cfg.HistoryRetentionDays),
	)
	return repo, nil
}

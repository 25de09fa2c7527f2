package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigclaw/internal/agent"
	"sigclaw/internal/attachments"
	"sigclaw/internal/config"
	"sigclaw/internal/constants"
	"sigclaw/internal/database"
	"sigclaw/internal/groups"
	"sigclaw/internal/metrics"
	"sigclaw/internal/models"
	"sigclaw/internal/prompt"
	"sigclaw/internal/retry"
	"sigclaw/internal/router"
	"sigclaw/internal/session"
	"sigclaw/internal/tracing"
	"sigclaw/internal/transport"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message contents)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("sigclaw %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting sigclaw")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	go runRetentionCleanup(ctx, db, cfg.RetentionDays, logger)

	sessions := session.NewStore(cfg.Sessions.Path, logger)

	names := groups.NewService(db, &groups.CLILister{
		CLIPath: cfg.Signal.CLIPath,
		Account: cfg.Signal.Account,
	}, logger)

	processor := attachments.NewProcessor(attachments.Config{
		SourceDir:      cfg.Attachments.SourceDir,
		Dir:            cfg.Attachments.Dir,
		MaxInlineBytes: int64(cfg.Attachments.MaxInlineImageKB) * 1024,
		InlineImages:   cfg.Attachments.InlineImagesEnable,
	}, logger)

	rt := router.NewRouter(router.Config{
		Agent:       cfg.Agent,
		Sessions:    sessions,
		Executor:    agent.NewCLIExecutor(cfg.Agent.Binary, logger),
		Names:       names,
		Attachments: processor,
		Prompts:     prompt.NewProvider(cfg.Agent.BotName, cfg.Agent.OwnerName),
		Sender: &transport.CLISender{
			CLIPath: cfg.Signal.CLIPath,
			Account: cfg.Signal.Account,
		},
	}, logger)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}
	defer rt.Stop()

	supervisor := transport.NewSupervisor(transport.SupervisorConfig{
		Account:  cfg.Signal.Account,
		Launcher: newLauncher(cfg),
		Schedule: retry.NewRestartSchedule(
			time.Duration(cfg.Signal.RestartDelaySec)*time.Second,
			time.Duration(cfg.Signal.MaxDelaySec)*time.Second,
		),
		OnMessage: func(msg *models.ParsedMessage) {
			rt.HandleMessage(ctx, msg)
		},
		OnError: func(err error) {
			metrics.IncrementCounter(metrics.MetricParseErrors, nil)
			logger.WithError(err).Warn("Transport error")
		},
		Logger: logger,
	})
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport supervisor: %w", err)
	}
	defer supervisor.Stop()

	logger.WithFields(logrus.Fields{
		"account":      cfg.Signal.Account,
		"receive_mode": cfg.Signal.ReceiveMode,
		"model":        cfg.Agent.Model,
	}).Info("sigclaw is running")

	if !cfg.Server.Enabled {
		<-ctx.Done()
		logger.Info("Received shutdown signal")
		return nil
	}

	server := NewServer(cfg, rt, supervisor, sessions, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message contents will be logged")
		return
	}
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// openDatabase opens the name-cache database with exponential backoff,
// covering slow volume mounts at container start
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoffConfig := retry.DefaultBackoffConfig()
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to open database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database after retries: %w", err)
	}
	return db, nil
}

func newLauncher(cfg *models.Config) transport.Launcher {
	if cfg.Signal.ReceiveMode == "websocket" {
		return &transport.WSLauncher{URL: cfg.Signal.WebsocketURL}
	}
	return &transport.CLILauncher{
		CLIPath: cfg.Signal.CLIPath,
		Account: cfg.Signal.Account,
	}
}

// runRetentionCleanup expires stale cached names once a day
func runRetentionCleanup(ctx context.Context, db *database.Database, retentionDays int, logger *logrus.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.CleanupOldRecords(ctx, retentionDays); err != nil {
				logger.WithError(err).Warn("Name cache cleanup failed")
			}
		}
	}
}

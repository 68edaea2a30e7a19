// Package main is the entry point for the agentflow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tcmartin/agentflow/pkg/agents"
	"github.com/tcmartin/agentflow/pkg/api"
	"github.com/tcmartin/agentflow/pkg/approvals"
	"github.com/tcmartin/agentflow/pkg/checkpoint"
	"github.com/tcmartin/agentflow/pkg/config"
	"github.com/tcmartin/agentflow/pkg/executor"
	"github.com/tcmartin/agentflow/pkg/logging"
	"github.com/tcmartin/agentflow/pkg/scheduler"
	"github.com/tcmartin/agentflow/pkg/storage"
	"github.com/tcmartin/agentflow/pkg/workflow"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "agentflow"
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := logging.Component("main")

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("Application failed")
		}
	case <-stop:
		logger.Info().Msg("Shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Error during shutdown")
		}
	}
}

// loadConfig loads the configuration from the flag path or the first
// standard location that parses, falling back to defaults
func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
		return cfg, nil
	}

	locations := []string{
		"./config.json",
		"./configs/config.json",
		filepath.Join(os.Getenv("HOME"), ".agentflow", "config.json"),
		"/etc/agentflow/config.json",
	}
	for _, path := range locations {
		if cfg, err := config.LoadConfig(path); err == nil {
			return cfg, nil
		}
	}

	return config.DefaultConfig(), nil
}

// App wires the engine, executor, stores and API server together
type App struct {
	config    *config.Config
	server    *api.Server
	scheduler *scheduler.RetentionScheduler
	redis     *redis.Client
	logger    zerolog.Logger
}

// NewApp builds the application from its configuration
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}

	checkpoints := checkpoint.NewRedisStoreWithRetention(redisClient, cfg.Retention.Window)
	approvalService := approvals.NewRedisService(redisClient)

	store, err := newWorkflowStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := workflow.NewEngine()
	if cfg.Workflows.Directory != "" {
		loaded, err := workflow.LoadDirectory(engine, cfg.Workflows.Directory)
		if err != nil {
			logger.Warn().Err(err).Str("directory", cfg.Workflows.Directory).Msg("Failed to load workflow directory")
		} else {
			logger.Info().Int("count", loaded).Str("directory", cfg.Workflows.Directory).Msg("Loaded workflow definitions")
		}
	}

	registry := agents.NewMemoryRegistry()
	if cfg.Workflows.AgentCatalog != "" {
		loaded, err := agents.LoadCatalog(registry, cfg.Workflows.AgentCatalog)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Workflows.AgentCatalog).Msg("Failed to load agent catalog")
		} else {
			logger.Info().Int("count", loaded).Msg("Loaded agent catalog")
		}
	}

	delegator := agents.NewHTTPDelegator(cfg.Worker.Endpoint)
	exec := executor.NewExecutor(engine, registry, delegator, approvalService)

	server := api.NewServer(cfg, engine, exec, approvalService, checkpoints, store)
	retention := scheduler.NewRetentionScheduler(checkpoints, cfg.Retention.Window)

	return &App{
		config:    cfg,
		server:    server,
		scheduler: retention,
		redis:     redisClient,
		logger:    logger,
	}, nil
}

// newWorkflowStore builds the definition store named by the configuration
func newWorkflowStore(cfg *config.Config) (storage.WorkflowStore, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return storage.NewMemoryWorkflowStore(), nil
	case "postgres":
		store, err := storage.NewPostgresWorkflowStore(storage.PostgresConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// Start runs the retention scheduler and the HTTP server, blocking until
// the server stops
func (a *App) Start() error {
	if err := a.scheduler.Start(a.config.Retention.CleanupSchedule); err != nil {
		return err
	}
	return a.server.Start()
}

// Stop shuts the application down gracefully
func (a *App) Stop(ctx context.Context) error {
	a.scheduler.Stop()
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	return a.redis.Close()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-encounter-server/internal/api"
	"github.com/clinical-encounter-server/internal/audit"
	"github.com/clinical-encounter-server/internal/config"
	"github.com/clinical-encounter-server/internal/database"
	"github.com/clinical-encounter-server/internal/directory"
	"github.com/clinical-encounter-server/internal/domain"
	"github.com/clinical-encounter-server/internal/repository"
	"github.com/clinical-encounter-server/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clinical-encounter-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configManager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	cfg := configManager.GetConfig()

	logger := buildLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"backend":     cfg.Storage.Backend,
	}).Info("Starting clinical encounter server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := buildDocumentStore(ctx, configManager, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	trail, err := buildAuditTrail(configManager, logger)
	if err != nil {
		return err
	}
	defer trail.Close()

	sessions, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	dir, err := buildDirectory(cfg, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Sessions:  sessions,
		Directory: dir,
		Audit:     trail,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func buildLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}

// buildDocumentStore selects the storage backend. The postgres backend
// runs pending migrations before the pool is handed to the repository.
func buildDocumentStore(ctx context.Context, manager *config.Manager, logger *logrus.Logger) (domain.DocumentStore, func(), error) {
	cfg := manager.GetConfig()

	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("Using in-memory document store, documents will not survive a restart")
		return repository.NewMemoryStore(), func() {}, nil

	case "sqlite":
		store, err := repository.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, func() { store.Close() }, nil

	case "postgres":
		runner, err := database.NewMigrationRunner(manager.GetDatabaseURL(), "migrations", logger)
		if err != nil {
			return nil, nil, fmt.Errorf("preparing migrations: %w", err)
		}
		if err := runner.Up(ctx); err != nil {
			runner.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		runner.Close()

		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return repository.NewPostgresStore(db.Pool, logger), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildAuditTrail pairs the audit store with the document backend: the
// memory backend logs only, the others persist events alongside the
// documents.
func buildAuditTrail(manager *config.Manager, logger *logrus.Logger) (*audit.Trail, error) {
	cfg := manager.GetConfig()

	switch cfg.Storage.Backend {
	case "sqlite":
		path := strings.TrimSuffix(cfg.Storage.SQLitePath, ".db") + "_audit.db"
		store, err := audit.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		return audit.NewPersistentTrail(logger, store), nil

	case "postgres":
		store, err := audit.NewPostgresStoreFromURL(manager.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		return audit.NewPersistentTrail(logger, store), nil

	default:
		return audit.NewTrail(logger), nil
	}
}

func buildSessionStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (session.Store, error) {
	if cfg.Sessions.RedisURL == "" {
		logger.Warn("No redis_url configured, sessions are held in memory")
		return session.NewMemoryStore(cfg.Sessions.TTL), nil
	}

	store, err := session.NewRedisStore(ctx, cfg.Sessions.RedisURL, cfg.Sessions.TTL, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}

func buildDirectory(cfg *domain.Config, logger *logrus.Logger) (domain.ProfileDirectory, error) {
	if cfg.Directory.BaseURL == "" {
		logger.Warn("No directory base_url configured, using built-in development accounts")
		return directory.NewStatic(directory.DevProfiles()...), nil
	}

	client, err := directory.NewClient(directory.Config{
		BaseURL:   cfg.Directory.BaseURL,
		Timeout:   cfg.Directory.Timeout,
		RateLimit: 10,
		CacheSize: cfg.Directory.CacheSize,
		CacheTTL:  5 * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating directory client: %w", err)
	}
	return client, nil
}

// Package store selects and opens the storage backend for the tracker.
//
// Supported backends:
//
//   - "file": JSON document on local disk (default), written atomically.
//   - "memory": process memory only. State is lost on restart.
//   - "redis": the document under one Redis key. Connectivity is checked at
//     startup.
//   - "sqlite": a single-row table in a local SQLite database.
//
// Initialization is fail-fast: New exits the process if the backend cannot be
// opened, so the tracker never runs against broken storage.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/config"
	"github.com/HatiCode/peakwatch/pkg/storage"
)

// New opens the configured backend, calling os.Exit(1) on failure.
func New(cfg *config.Config, logger *slog.Logger) storage.Backend {
	backend, err := Open(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	return backend
}

// Open opens the configured backend.
func Open(cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Storage {
	case "file", "":
		logger.Info("initializing file storage", "path", cfg.StateFile)
		return storage.NewFileBackend(cfg.StateFile)

	case "memory":
		logger.Info("initializing in-memory storage")
		return storage.NewMemoryBackend(), nil

	case "redis":
		logger.Info("initializing redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"key", cfg.RedisKey,
		)
		redisBackend, err := storage.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisBackend.Ping(ctx); err != nil {
			redisBackend.Close()
			return nil, fmt.Errorf("redis health check failed: %w", err)
		}
		logger.Info("redis storage initialized successfully")
		return redisBackend, nil

	case "sqlite":
		logger.Info("initializing sqlite storage", "path", cfg.SQLitePath)
		return storage.NewSQLiteBackend(cfg.SQLitePath)

	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}

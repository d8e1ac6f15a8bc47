// Package bootstrap wires process-wide runtime dependencies for the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"soundcheck/internal/cache"
	"soundcheck/internal/config"
	"soundcheck/internal/database"
	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/observability"
	"soundcheck/internal/repository"
	"soundcheck/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "soundcheck-api"

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema opens the database without applying the schema policy.
	SkipSchema bool
	// SkipRedis leaves the Redis client nil.
	SkipRedis bool
}

// Runtime is the set of shared dependencies a command runs with.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client

	shutdownTracing func(context.Context) error
}

// InitRuntime sets up logging and tracing, connects to the database and
// Redis, and ensures the development root admin when enabled.
func InitRuntime(cfg *config.Config, opts Options) (*Runtime, error) {
	middleware.SetupLogger(cfg.Env)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	var db *gorm.DB
	if opts.SkipSchema {
		db, err = database.Open(cfg)
	} else {
		db, err = database.Connect(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rt := &Runtime{DB: db, shutdownTracing: shutdownTracing}

	if !opts.SkipRedis {
		// Init Redis (may result in nil client if unreachable)
		cache.InitRedis(cfg.RedisURL)
		rt.Redis = cache.GetClient()
	}

	if !opts.SkipSchema {
		if err := EnsureDevRootAdmin(context.Background(), cfg, repository.NewUserRepository(db)); err != nil {
			return nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
		}
	}

	return rt, nil
}

// FlushTraces stops the tracer provider, exporting any buffered spans.
func (r *Runtime) FlushTraces(ctx context.Context) {
	if r.shutdownTracing == nil {
		return
	}
	if err := r.shutdownTracing(ctx); err != nil {
		middleware.Logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
}

// Close flushes traces and releases the database and Redis connections.
func (r *Runtime) Close(ctx context.Context) {
	r.FlushTraces(ctx)
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if sqlDB, err := r.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// EnsureDevRootAdmin creates or promotes the root admin account in the
// development environment when DEV_BOOTSTRAP_ROOT is set.
func EnsureDevRootAdmin(ctx context.Context, cfg *config.Config, users repository.UserRepository) error {
	if cfg == nil || users == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	username := strings.TrimSpace(cfg.DevRootUsername)
	if username == "" {
		username = "soundcheck_root"
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@soundcheck.local"
	}
	if cfg.DevRootPassword == "" {
		return fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role != models.RoleAdmin {
			if err := users.UpdateRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return err
			}
		}
	} else {
		hash, err := service.HashPassword(cfg.DevRootPassword)
		if err != nil {
			return fmt.Errorf("hash root password: %w", err)
		}
		if err := users.Create(ctx, &models.User{
			Username: username,
			Email:    email,
			Password: hash,
			Role:     models.RoleAdmin,
		}); err != nil {
			return err
		}
	}

	middleware.Logger.Info("development root admin ensured", slog.String("email", email))
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/Meridian-Labs/poolrun/pkg/api"
	"github.com/Meridian-Labs/poolrun/pkg/audit"
	"github.com/Meridian-Labs/poolrun/pkg/auth"
	"github.com/Meridian-Labs/poolrun/pkg/config"
	"github.com/Meridian-Labs/poolrun/pkg/engine"
	"github.com/Meridian-Labs/poolrun/pkg/observability"
	"github.com/Meridian-Labs/poolrun/pkg/ratelimit"
	"github.com/Meridian-Labs/poolrun/pkg/store"
	"github.com/Meridian-Labs/poolrun/pkg/store/memory"
	"github.com/Meridian-Labs/poolrun/pkg/store/sqlstore"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

func runServer() int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.NewProvider(ctx, &observability.Config{
		ServiceName:    "poolrun",
		ServiceVersion: version,
		Environment:    envName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	metrics, err := observability.NewMetrics(obs)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	st, closeStore, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store init failed", "database_url", cfg.DatabaseURL, "error", err)
		return 1
	}
	defer closeStore()

	eng := engine.New(st, vault.NewBank(),
		engine.WithAudit(audit.NewLogger()),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
	)

	var limiter ratelimit.Store
	if cfg.RedisAddr != "" {
		rs := ratelimit.NewRedisStore(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		defer func() { _ = rs.Close() }()
		limiter = rs
	} else {
		limiter = ratelimit.NewMemoryStore()
	}

	validator := auth.NewValidator([]byte(cfg.AuthSecret))
	if validator == nil {
		logger.Warn("AUTH_SECRET not set; every authenticated endpoint will reject")
	}

	srv := api.NewServer(eng,
		api.WithLogger(logger),
		api.WithRateLimit(limiter, ratelimit.Policy{RPS: cfg.RateRPS, Burst: cfg.RateBurst}),
		api.WithTemplates(cfg.TemplatesDir),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(validator),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	logger.Info("server stopped")
	return 0
}

// openStore picks the backend from the DATABASE_URL scheme:
// memory://, sqlite://<path>, or postgres://...
func openStore(ctx context.Context, url string) (store.Store, func(), error) {
	switch {
	case url == "memory://":
		return memory.New(), func() {}, nil
	case strings.HasPrefix(url, "sqlite://"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, nil, err
		}
		st, err := sqlstore.New(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, func() { _ = db.Close() }, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		st, err := sqlstore.New(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported DATABASE_URL scheme: %s", url)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envName() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

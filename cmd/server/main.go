package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/route33/routesync/internal/config"
	"github.com/route33/routesync/internal/core"
	"github.com/route33/routesync/internal/logging"
	"github.com/route33/routesync/internal/storage"
	"github.com/route33/routesync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"pending_ttl", cfg.Sync.PendingTTL,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := storage.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	mappings := core.DefaultMappings()
	if cfg.Sync.MappingsFile != "" {
		mappings, err = core.LoadMappings(cfg.Sync.MappingsFile)
		if err != nil {
			slog.Error("failed to load mappings", "file", cfg.Sync.MappingsFile, "error", err)
			os.Exit(1)
		}
		slog.Info("mappings loaded", "file", cfg.Sync.MappingsFile)
	}

	// Additions on a route no plant maps to arrived via the fallback and
	// deserve a closer look before they are applied.
	mappedRoutes := make(map[int]bool, len(mappings.PlantRoutes))
	for _, route := range mappings.PlantRoutes {
		mappedRoutes[route] = true
	}
	policy := core.DefaultDiffPolicy()
	policy.SuspectAddition = func(c core.Customer) bool {
		return !mappedRoutes[c.RouteNumber]
	}

	service := core.NewService(store, core.NewNormalizer(mappings), policy, cfg.Sync.PendingTTL)

	server := web.NewServer(service, cfg)

	// Background reaper for expired pending syncs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartJanitor(jobCtx, cfg.Sync.JanitorInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if pending := service.PendingCount(); pending > 0 {
			slog.Info("pending syncs will expire unreviewed", "count", pending)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

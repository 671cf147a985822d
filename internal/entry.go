// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tom-jordan23/cooking-mcp/internal/api"
	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/idempotency"
	"github.com/tom-jordan23/cooking-mcp/internal/mcpserver"
	"github.com/tom-jordan23/cooking-mcp/internal/mirrorsync"
	"github.com/tom-jordan23/cooking-mcp/internal/mirrorwatch"
	"github.com/tom-jordan23/cooking-mcp/internal/notebook"
	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/sse"
	"github.com/tom-jordan23/cooking-mcp/internal/store"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. It writes to stderr so the stdio MCP
// transport keeps stdout to itself.
func newLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
}

// Run starts the server with the given options: the HTTP bridge plus the
// mirror watcher by default, or the MCP stdio transport with WithStdio.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("mirror_path", cfg.Mirror.Path),
		slog.String("idempotency_backend", cfg.Idempotency.Backend),
		slog.String("log_level", cfg.Log.SlogLevel().String()))

	// Initialize the repository.
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// Initialize the git mirror.
	mirror, err := gitmirror.New(cfg.Mirror.Path, cfg.Mirror.AuthorName, cfg.Mirror.AuthorEmail, logger)
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}
	if err := mirror.Initialize(true, true); err != nil {
		return fmt.Errorf("initialize mirror: %w", err)
	}

	// Idempotency cache, in-process or shared.
	var cache idempotency.Cache
	if cfg.Idempotency.Backend == IdempotencyBackendRedis {
		rdb := idempotency.NewRedis(&redis.Options{
			Addr:     cfg.Idempotency.Redis.Addr,
			Password: cfg.Idempotency.Redis.Password,
			DB:       cfg.Idempotency.Redis.DB,
		})
		if err := rdb.Ping(ctx); err != nil {
			return fmt.Errorf("idempotency redis: %w", err)
		}
		defer rdb.Close()
		cache = rdb
	} else {
		cache = idempotency.NewMemory()
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Core service and both routers.
	svc := notebook.NewService(db, mirror, broker, logger)
	toolRouter := tools.NewRouter(svc, cache, logger)
	resourceRouter := resources.NewRouter(svc, cfg.Resources.CacheTTL(), logger)

	if app.stdio {
		logger.Info("Starting MCP server on stdio",
			slog.String("name", cfg.MCP.Name),
			slog.String("version", cfg.MCP.Version))
		srv := mcpserver.New(cfg.MCP.Name, cfg.MCP.Version, toolRouter, resourceRouter)
		return srv.ServeStdio()
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api/v1; the broker serves GET /api/v1/events.
	r.Mount("/api/v1", api.NewRouter(svc, toolRouter, resourceRouter, broker))

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the out-of-band mirror watcher.
	if cfg.Watcher.Enabled {
		g.Go(func() error {
			if err := mirrorwatch.Watch(gCtx, mirror, broker, logger, cfg.Watcher.Debounce()); err != nil {
				logger.Error("mirror watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// InitMirror creates and scaffolds the mirror repository. With WithSeed the
// scaffold files land in an initial commit.
func InitMirror(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	mirror, err := gitmirror.New(cfg.Mirror.Path, cfg.Mirror.AuthorName, cfg.Mirror.AuthorEmail, logger)
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}
	if err := mirror.Initialize(true, app.seed); err != nil {
		return fmt.Errorf("initialize mirror: %w", err)
	}

	status, err := mirror.Status()
	if err != nil {
		return fmt.Errorf("mirror status: %w", err)
	}
	logger.Info("Mirror initialized",
		slog.String("path", status.Path),
		slog.String("branch", status.Branch),
		slog.Int("commits", status.CommitCount))
	return nil
}

// Reconcile runs one offline reconciliation pass: repository to mirror by
// default, mirror to repository with WithImport.
func Reconcile(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	mirror, err := gitmirror.New(cfg.Mirror.Path, cfg.Mirror.AuthorName, cfg.Mirror.AuthorEmail, logger)
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}
	if err := mirror.Initialize(true, true); err != nil {
		return fmt.Errorf("initialize mirror: %w", err)
	}

	if app.fromMirror {
		n, err := mirrorsync.Import(db, mirror, logger)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		logger.Info("Import finished", slog.Int("entries", n))
		return nil
	}

	res, err := mirrorsync.Sync(db, mirror, logger)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	logger.Info("Sync finished",
		slog.Int("checked", res.Checked),
		slog.Int("rewritten", res.Rewritten),
		slog.String("commit", res.CommitSHA))
	return nil
}

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
	"golang.org/x/sync/errgroup"

	"github.com/starford/context-bank/internal/api"
	"github.com/starford/context-bank/internal/contextbank"
	"github.com/starford/context-bank/internal/git"
	"github.com/starford/context-bank/internal/journal"
	"github.com/starford/context-bank/internal/mcpserver"
	"github.com/starford/context-bank/internal/search"
	"github.com/starford/context-bank/internal/sse"
	"github.com/starford/context-bank/internal/workspace"
)

// Run starts the application with the given options and blocks until the
// transport stops or a shutdown signal arrives. Every workspace still
// registered at that point is removed before Run returns.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Stdout carries JSON-RPC on the stdio transport.
	logOut := app.stdout
	if cfg.App.Transport == TransportStdio {
		logOut = app.stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("transport", cfg.App.Transport),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("default_repository", git.Redact(cfg.Repository.DefaultURL)),
		slog.String("workspace_dir", cfg.Workspace.TempDir),
		slog.String("journal_path", cfg.Workspace.JournalPath),
		slog.Bool("remote_search", cfg.Search.Remote.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	var j workspace.Journal
	if cfg.Workspace.JournalPath != "" {
		db, err := journal.Open(cfg.Workspace.JournalPath)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer db.Close()
		j = db
	}

	registry := workspace.NewRegistry(logger, j)
	if n, err := registry.Recover(); err != nil {
		logger.Warn("stale workspace recovery failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("Removed stale workspaces", slog.Int("count", n))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	manager := workspace.NewManager(git.NewDefaultClient(), registry,
		workspace.WithTempDir(cfg.Workspace.TempDir),
		workspace.WithPrefix(cfg.Workspace.Prefix),
		workspace.WithLogger(logger),
		workspace.WithObserver(func(kind, path string) {
			broker.PublishWorkspaceEvent(kind, path, registry.Len())
		}),
	)

	native := search.NewNative(manager)
	backends := []search.Backend{native}
	if cfg.Search.Remote.Enabled {
		backends = []search.Backend{search.NewGitHub(cfg.Search.Remote.Host), native}
	}

	svc := contextbank.NewService(manager, cfg.Repository.Defaults(),
		contextbank.WithLogger(logger),
		contextbank.WithSelector(search.NewSelector(backends...)),
		contextbank.WithObserver(func(c contextbank.Completion) {
			op := sse.Operation{
				Operation:  c.Operation,
				Repository: c.Repository,
				Branch:     c.Branch,
				ElapsedMS:  c.Elapsed.Milliseconds(),
			}
			if c.Err != nil {
				op.Error = c.Err.Error()
			}
			broker.PublishOperation(op)
		}),
	)
	mcpSrv := mcpserver.New(svc)

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	runCtx, stop := context.WithCancel(sigCtx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	switch cfg.App.Transport {
	case TransportHTTP:
		httpServer := &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newRouter(cfg, svc, mcpSrv, broker, registry),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			defer stop()
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})

	default:
		g.Go(func() error {
			defer stop()
			logger.Info("Serving MCP over stdio")
			return mcpSrv.ServeStdio(gCtx, app.stdin, app.stdout, logger)
		})
	}

	err := g.Wait()
	if sigCtx.Err() != nil && ctx.Err() == nil {
		logger.Info("Received shutdown signal")
	}

	if n := registry.Drain(); n > 0 {
		logger.Info("Removed outstanding workspaces", slog.Int("count", n))
	}

	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newRouter assembles the HTTP surface: health probes, the REST mirror under
// /api and the streamable MCP endpoint at /mcp.
func newRouter(cfg *Config, svc api.Service, mcpSrv *mcpserver.Server, broker *sse.Broker, registry *workspace.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","workspaces":%d}`, registry.Len())
	})

	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	mcpHandler := api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)(mcpSrv.HTTPHandler())
	r.Handle("/mcp", mcpHandler)

	return r
}

// Package internal wires the prehandler's components into runnable modes.
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

	"github.com/starford/trevanbox/internal/api"
	"github.com/starford/trevanbox/internal/pipeline"
	"github.com/starford/trevanbox/internal/sse"
	"github.com/starford/trevanbox/internal/watch"
)

// progressThrottle bounds how often batch.progress events reach clients.
const progressThrottle = 2 * time.Second

// Run starts serve mode: the HTTP API with its event stream and, when
// enabled, the import directory watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App, os.Stderr)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("model", cfg.Ollama.Model),
		slog.Bool("watch", app.watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(progressThrottle)
	defer broker.Close()

	rt, err := NewRuntime(cfg, logger, pipeline.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.AcquireLock(); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHTTPHandler(rt, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if app.watch {
		g.Go(func() error {
			opts := pipeline.Options{MoveToInbox: cfg.Processing.MoveToInbox}
			return watch.Watch(gCtx, rt.Processor, rt.WatchConfig(opts), logger)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

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

		// Stops the watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// NewHTTPHandler builds the serve mode router: health probes plus the API
// under /api.
func NewHTTPHandler(rt *Runtime, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(rt.Service(), rt.Config.Auth.AuthEnabled(), rt.Config.Auth.Token, events))
	return r
}

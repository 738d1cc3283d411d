// Command readmark serves annotated reader-mode articles to a host
// application over HTTP, a websocket view channel and MCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/readmark/article"
	"github.com/hazyhaar/readmark/audit"
	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/hoststore"
	"github.com/hazyhaar/readmark/internal/config"
	"github.com/hazyhaar/readmark/reader"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		slog.Error("readmark: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Logging goes to stderr; stdout carries the stdout sink.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []reader.Option{}
	for _, sc := range cfg.Sinks {
		sink, err := buildSink(sc, logger)
		if err != nil {
			return err
		}
		opts = append(opts, reader.WithSink(sink))
	}

	if cfg.Store.Path != "" {
		store, err := hoststore.Open(cfg.Store.Path, hoststore.WithLogger(logger))
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, reader.WithStore(store))
		logger.Info("readmark: highlight store opened", "path", cfg.Store.Path)

		if err := audit.Init(ctx, store.DB()); err != nil {
			return err
		}
		trail := audit.New(store.DB(), 0, audit.WithLogger(logger))
		defer trail.Close()
		opts = append(opts, reader.WithAudit(trail))
	}

	cfg.Article.Logger = logger
	opts = append(opts, reader.WithLoader(article.NewLoader(cfg.Article)))

	cfg.Engine.Logger = logger
	svc := reader.NewService(reader.Config{
		Engine:    cfg.Engine,
		BaseURL:   cfg.Article.BaseURL,
		Prefs:     cfg.Prefs,
		QueueSize: cfg.Server.QueueSize,
		Logger:    logger,
	}, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("readmark: shutdown", "error", err)
		}
	}()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: reader.NewHandler(svc, reader.HandlerConfig{
			CORSOrigins: cfg.Server.CORSOrigins,
			MaxBody:     cfg.Server.MaxBody,
			MCP:         cfg.Server.MCPEnabled(),
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("readmark: listening", "addr", cfg.Server.Addr, "mcp", cfg.Server.MCPEnabled(), "version", reader.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("readmark: listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("readmark: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func buildSink(sc config.SinkConfig, logger *slog.Logger) (bridge.Sink, error) {
	switch sc.Type {
	case "stdout":
		return bridge.NewStdout(os.Stdout), nil
	case "webhook":
		return bridge.NewWebhook(sc.URL,
			bridge.WithWebhookRetries(sc.Retries),
			bridge.WithWebhookBackoff(sc.Backoff),
			bridge.WithWebhookLogger(logger),
		), nil
	}
	return nil, fmt.Errorf("readmark: unknown sink type %q", sc.Type)
}

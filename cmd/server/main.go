package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/yclients-mcp/internal/api/router"
	"github.com/wolfman30/yclients-mcp/internal/app/bootstrap"
	appconfig "github.com/wolfman30/yclients-mcp/internal/config"
	"github.com/wolfman30/yclients-mcp/internal/mcp"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting yclients MCP server",
		"env", cfg.Env,
		"transport", cfg.Transport,
		"company_id", cfg.YClientsCompanyID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, stdin io.Reader, stdout io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry, err := bootstrap.BuildToolRegistry(cfg, reg, logger)
	if err != nil {
		return err
	}
	server := mcp.NewServer(cfg.ServerName, cfg.ServerVersion, registry, logger.With("component", "mcp"))

	if cfg.Transport == appconfig.TransportStdio {
		err := server.ServeStdio(ctx, stdin, stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sseHandler := mcp.NewSSEHandler(server, logger.With("component", "sse"))
	handler := router.New(&router.Config{
		Logger:             logger,
		Server:             server,
		SSE:                sseHandler,
		Version:            cfg.ServerVersion,
		ToolNames:          registry.Names(),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Limiter:            bootstrap.BuildRateLimiter(ctx, cfg, redisClient, logger),
	})

	// Event streams stay open, so no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Shutdown waits for active handlers, so open streams must be ended.
	srv.RegisterOnShutdown(sseHandler.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"sse", "http://localhost:"+cfg.Port+"/sse",
			"health", "http://localhost:"+cfg.Port+"/health",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/capwatch/internal/adapters/http/api"
	"github.com/okian/capwatch/internal/adapters/repository"
	"github.com/okian/capwatch/internal/adapters/runemetrics"
	service "github.com/okian/capwatch/internal/app"
	"github.com/okian/capwatch/internal/config"
	"github.com/okian/capwatch/internal/poller"
	"github.com/okian/capwatch/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Logger isn't available yet, write directly to stderr
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(cfg.DBPath)
	if err != nil {
		loggerInstance.Error(ctx, "failed to open cap event store", logger.String("db_path", cfg.DBPath), logger.Error(err))
		return
	}

	client := runemetrics.NewClient(
		runemetrics.WithRosterURL(cfg.RosterURL),
		runemetrics.WithProfileURL(cfg.ProfileURL),
		runemetrics.WithActivityLimit(cfg.ActivityLimit),
	)

	p := poller.New(client, cfg.ClanName,
		poller.WithPaceInterval(time.Duration(cfg.PaceSeconds)*time.Second),
		poller.WithInitialBackoff(time.Duration(cfg.InitialBackoffSeconds)*time.Second),
		poller.WithMaxBackoff(time.Duration(cfg.MaxBackoffSeconds)*time.Second),
		poller.WithMaxFailures(cfg.MaxMemberFailures),
	)

	svc := service.New(store, p,
		service.WithLogger(loggerInstance),
		service.WithPollInterval(time.Duration(cfg.PollIntervalMinutes)*time.Minute),
		service.WithShutdownTimeout(time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second),
	)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

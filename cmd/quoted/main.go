package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/config"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/httpapi"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/service"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/quoted.example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	build := version.Get()
	logger.Info("starting quoted",
		"version", build.Version,
		"commit", build.Commit,
		"go", build.GoVersion,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"provider", cfg.Provider.Kind,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.NewRouter(svc, logger),
	}

	go func() {
		logger.Info("starting http server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("quoted running",
		"targets", len(svc.Scheduler().Targets()),
		"scheduler_running", svc.Scheduler().IsRunning(),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stopping the service closes websocket clients so Shutdown does not
	// wait on hijacked connections.
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error("service stop failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	logger.Info("quoted stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

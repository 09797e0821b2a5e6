package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"leadboard/internal/backend"
	"leadboard/internal/cli"
	"leadboard/internal/core"
	apphttp "leadboard/internal/http"
	"leadboard/internal/log"
	"leadboard/internal/middleware/ratelimit"
	"leadboard/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	logger, logCloser := cli.SetupLogger(cfg, log.ComponentApp)
	defer logCloser.Close()

	team, err := core.LoadTeam(cfg.TeamFile)
	if err != nil {
		logger.Error("Failed to load team file", "error", err, "path", cfg.TeamFile)
		os.Exit(1)
	}
	calendarStart, err := core.ParseDay(cfg.CalendarStart)
	if err != nil {
		logger.Error("Invalid calendar start", "error", err)
		os.Exit(1)
	}
	weeks := core.WeekWindows(calendarStart, cfg.CalendarWeeks)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	reconciler := services.NewReconciler(result.Store, services.SystemClock,
		logger.WithComponent(log.ComponentReconciler).Logger,
		services.ReconcilerConfig{DebounceDelay: cfg.DebounceDelay, Team: team})

	srv := apphttp.NewServer(":"+cfg.Port, reconciler, apphttp.Options{
		Weeks:     weeks,
		Team:      team,
		CacheSize: cfg.CacheSize,
		RateLimit: ratelimit.DefaultConfig(),
		Logger:    logger.WithComponent(log.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		// edits accepted before the server drained are written now
		if reconciler.FlushIfDue(ctx) {
			logger.Info("Flushed pending edits")
		}
		if err := reconciler.Close(ctx); err != nil {
			logger.Error("Reconciler close error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	// The HTTP server answers 503 on the views until the load below completes.
	g.Go(func() error {
		logger.Info("Starting leadboard server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"document_id", cfg.DocumentID,
			"weeks", len(weeks))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := reconciler.Start(gctx); err != nil {
			_ = srv.Close()
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Leadboard stopped with error", "error", err)
		_ = reconciler.Close(context.Background())
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

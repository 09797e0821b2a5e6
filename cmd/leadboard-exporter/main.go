package main

import (
	"context"
	"flag"
	"os"
	"time"

	"leadboard/internal/backend"
	"leadboard/internal/cli"
	"leadboard/internal/log"
	"leadboard/internal/sheets"
	gsheet "leadboard/internal/sheets/google"
	mem "leadboard/internal/sheets/memory"
	"leadboard/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "export the current month once and exit")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	logger, logCloser := cli.SetupLogger(cfg, log.ComponentExporter)
	defer logCloser.Close()

	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration validation failed", "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(startCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	var writer sheets.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(startCtx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
			ClientJSON: cfg.GoogleOAuthClientJSON,
			ClientFile: cfg.GoogleOAuthClientFile,
			TokenJSON:  cfg.GoogleOAuthTokenJSON,
			TokenFile:  cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory")
	}

	var runs worker.RunRecorder
	if repo := cli.InitRunLog(logger, cfg.ExportDBPath, cfg.DocumentID); repo != nil {
		defer repo.Close()
		runs = repo
	}

	exporter := worker.NewExportWorker(result.Store, writer, runs, logger.Logger)

	if *once {
		if err := exporter.ExportCurrent(startCtx); err != nil {
			logger.Error("Export failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up right away instead of waiting for the first tick.
	if err := exporter.ExportCurrent(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	if err := exporter.Run(ctx, cfg.ExportSchedule); err != nil {
		logger.Error("Export scheduler failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Exporter stopped gracefully")
}

// invoicesync scans mailboxes for invoices over IMAP.
//
// Usage:
//
//	invoicesync serve    Start the HTTP server
//	invoicesync version  Print version information
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mailsift/invoicesync/internal/classify"
	"github.com/mailsift/invoicesync/internal/config"
	"github.com/mailsift/invoicesync/internal/storage"
	"github.com/mailsift/invoicesync/internal/store"
	"github.com/mailsift/invoicesync/internal/sync"
	"github.com/mailsift/invoicesync/internal/sync/imap"
	"github.com/mailsift/invoicesync/internal/web"
)

var version = "1.0.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "version":
		fmt.Printf("invoicesync %s\n", version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: invoicesync <command>

Commands:
  serve       Start the HTTP server
  version     Print version information

Environment:
  LISTEN_ADDR          HTTP listen address (default: :8090)
  DATABASE_PATH        SQLite database path (default: ./data/invoicesync.db)
  DATA_DIR             Base data directory for local blob storage (default: ./data)
  IMAP_DIAL_TIMEOUT    IMAP dial timeout (default: 30s)
  CLASSIFIER_CONFIG    Optional YAML file overriding classifier heuristics
  LOG_LEVEL            debug | info | warn | error (default: info)
  LOG_FORMAT           text | json (default: text)

  S3_ENDPOINT          S3/MinIO endpoint; when set, attachments go to S3
  S3_ACCESS_KEY_ID     S3 access key
  S3_SECRET_ACCESS_KEY S3 secret key
  S3_BUCKET            S3 bucket (default: invoices)`)
}

func runServe() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	blobs, err := storage.NewBlobStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to init blob storage", "error", err)
		os.Exit(1)
	}

	classifierCfg := classify.DefaultConfig()
	if cfg.ClassifierConfig != "" {
		classifierCfg, err = classify.LoadConfig(cfg.ClassifierConfig)
		if err != nil {
			logger.Error("failed to load classifier config", "error", err)
			os.Exit(1)
		}
	}
	classifier, err := classify.New(classifierCfg)
	if err != nil {
		logger.Error("failed to build classifier", "error", err)
		os.Exit(1)
	}

	transport := imap.NewTransport(cfg.IMAPDialTimeout, logger)
	scanner := sync.NewScanner(transport, st, blobs, classifier, logger)
	registry := sync.NewRegistry()
	syncService := sync.NewService(st, scanner, registry, logger)

	router := web.NewRouter(web.Config{
		Store: st,
		Sync:  syncService,
	})

	logger.Info("starting invoicesync", "version", version, "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

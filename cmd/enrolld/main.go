package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/me/enrolld/internal/config"
	"github.com/me/enrolld/internal/executor"
	"github.com/me/enrolld/internal/logging"
	"github.com/me/enrolld/internal/pool"
	"github.com/me/enrolld/internal/scheduler"
	"github.com/me/enrolld/internal/server"
	"github.com/me/enrolld/internal/store"
)

func main() {
	// Local .env for development; absent in production deployments.
	godotenv.Load()

	// Config file path comes from the environment so flags can layer on
	// top of file values: file, then ENROLLD_* env, then flags.
	cfg, err := config.Load(os.Getenv("ENROLLD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	applyEnv(&cfg)

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.enrolld/enrolld.db)")
	flag.StringVar(&cfg.ExecutorURL, "executor-url", cfg.ExecutorURL, "Base URL of the step executor service")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent jobs per batch")
	flag.Parse()

	logger := logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".enrolld")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dir, "enrolld.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	p := pool.NewManager(st, logger)

	// Register the step executor. Without one, batches start but every
	// step fails with a clear message.
	reg := executor.NewRegistry(logger)
	if cfg.ExecutorURL != "" {
		reg.RegisterDefault(executor.NewHTTPExecutor(cfg.ExecutorURL, logger))
		logger.Info("step executor configured", "url", cfg.ExecutorURL)
	} else {
		logger.Warn("no step executor configured", "hint", "set executor_url in config or --executor-url")
	}

	runner := scheduler.NewRunner(st, p, reg, scheduler.Config{
		Concurrency:        cfg.Concurrency,
		MaxRotationRetries: cfg.MaxRotationRetries,
	}, logger)

	srv := server.New(cfg, st, p, runner, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop running batches before the HTTP server so in-flight steps can
	// persist their progress.
	srv.StopBatches()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}

// applyEnv overlays ENROLLD_* environment variables onto the config,
// between the file and the flags.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("ENROLLD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("ENROLLD_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ENROLLD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENROLLD_EXECUTOR_URL"); v != "" {
		cfg.ExecutorURL = v
	}
}

// Command promptsyncd runs the reference sync authority for the prompt
// catalog: the /api/sync and /api/mutations endpoints over a memory or
// Postgres backend.
package main

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

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/promptpad/promptsync/promptsync"
)

// serverConfig is the YAML config file shape. Flags override file values.
type serverConfig struct {
	Addr        string `yaml:"addr"`
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:     ":3001",
		Backend:  "memory",
		LogLevel: "info",
	}
}

func loadConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promptsyncd",
		Short: "Reference sync authority for the prompt catalog",
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var (
		configPath  string
		addr        string
		backend     string
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			if cfg.DatabaseURL == "" {
				cfg.DatabaseURL = os.Getenv("DATABASE_URL")
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", ":3001", "listen address")
	cmd.Flags().StringVar(&backend, "backend", "memory", "storage backend (memory|postgres)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (postgres backend)")
	return cmd
}

func serve(ctx context.Context, cfg serverConfig) error {
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	var backend promptsync.Backend
	switch cfg.Backend {
	case "memory":
		backend = promptsync.NewMemBackend()
		logger.Warn("Using in-memory backend; data is lost on restart")
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("postgres backend requires --database-url or DATABASE_URL")
		}
		pg, err := promptsync.NewPGBackend(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres backend: %w", err)
		}
		defer pg.Close()
		backend = pg
	default:
		return fmt.Errorf("unknown backend %q (want memory or postgres)", cfg.Backend)
	}

	service := promptsync.NewService(backend, nil, logger)
	handlers := promptsync.NewHandlers(service, logger)
	mux := http.NewServeMux()
	handlers.Register(mux)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting sync server", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

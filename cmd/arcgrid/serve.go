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

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/arc-hci/arcgrid/internal/config"
	"github.com/arc-hci/arcgrid/internal/ipc"
	"github.com/arc-hci/arcgrid/internal/store"
	"github.com/arc-hci/arcgrid/internal/task"
	"github.com/arc-hci/arcgrid/internal/workflow"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP host",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Resolve config path: --config flag > ARCGRID_CONFIG env > ./config.yaml.
			cfg, err := config.Load(config.Discover(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration YAML file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	loader := task.NewLoader(afero.NewOsFs(), logger)
	if err := loader.Load(cfg.TaskDirs...); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if loader.Count() == 0 {
		logger.Warn("no tasks loaded; attempts cannot be started", "dirs", cfg.TaskDirs)
	}

	sessions := ipc.NewSessionManager(cfg.Editor(), nil)
	handler := &ipc.Handler{
		Engine:         workflow.NewEngine(db),
		Tasks:          loader,
		Sessions:       sessions,
		Log:            logger,
		StreamInterval: time.Duration(cfg.StreamIntervalMs) * time.Millisecond,
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr, cfg.CORSOrigin)

	// Graceful shutdown on interrupt.
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaper := ipc.NewReaper(sessions, logger, time.Minute, time.Duration(cfg.SessionIdleMin)*time.Minute)
	reaper.Start(ctx)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		reaper.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("arcgrid listening",
		"addr", cfg.ListenAddr,
		"tasks", loader.Count(),
		"action_limit", cfg.ActionLimit,
	)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

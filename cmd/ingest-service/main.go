package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	"ratefeed/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "ingest-service",
		Short: "Fetches rate snapshots, publishes them to the broker and stores consumed snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to the YAML config file, CONFIG_FILE is used when empty")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the ingest service",
		RunE:  root.RunE,
	})

	return root
}

func run(ctx context.Context, configFile string) error {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		logging.EarlyErrorf("No config file given, pass --config or set CONFIG_FILE")
		return fmt.Errorf("config file is required")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		logging.EarlyErrorf("Failed to load config: %v", err)
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		logging.EarlyErrorf("Failed to init logger: %v", err)
		return err
	}
	defer log.Sync()

	log.InfowCtx(ctx, "Starting Ingest Service")

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Initialization failed", "error", err)
		return err
	}

	log.InfowCtx(ctx, "Service running")
	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
	} else {
		runErr = nil
	}

	// The signal context is already cancelled here, shutdown gets a fresh one.
	if err := app.Shutdown(context.Background()); err != nil {
		log.ErrorwCtx(ctx, "Shutdown finished with errors", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	log.InfowCtx(ctx, "Service shutdown complete")
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "ratefeed/cmd/query-service/docs"
	"ratefeed/internal/config"
	"ratefeed/internal/logger"
	"ratefeed/pkg/logging"
)

// @title           Ratefeed Query Service API
// @version         1.0
// @description     Read-only REST API over stored rate snapshots

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

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
		Use:   "query-service",
		Short: "Read-only REST API over stored rate snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to the YAML config file, CONFIG_FILE is used when empty")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the query service",
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

	log.InfowCtx(ctx, "Starting Query Service")

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Initialization failed", "error", err)
		return err
	}

	if err := app.Run(ctx); err != nil {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
		return err
	}

	log.InfowCtx(ctx, "Service shutdown complete")
	return nil
}

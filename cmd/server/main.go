// Command server runs the API key issuance and validation service over HTTP
// and, when enabled, gRPC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/monitoring"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           constants.ServiceName + "-server",
		Short:         "Serve API key issuance and validation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file; changes to its apikey section apply without a restart")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", err)
		return err
	}
	defer func() {
		if err := app.close(context.Background()); err != nil {
			log.Error(context.Background(), "shutdown cleanup failed", err)
		}
	}()

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, app.reload,
			config.WithWatcherLogger(log),
			config.WithErrorHandler(func(err error) {
				log.Warn(context.Background(), "configuration reload failed, keeping previous", logger.Err(err))
			}),
		)
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	log.Info(ctx, "service starting",
		logger.String("http_addr", cfg.Server.Addr()),
		logger.Bool("grpc_enabled", cfg.GRPC.Enabled),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("new_key_algorithm", cfg.APIKey.NewKeyAlgorithm),
	)
	return app.run(ctx)
}

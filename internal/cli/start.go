package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexkroman/aai-agent/internal/app"
	"github.com/alexkroman/aai-agent/internal/config"
)

const shutdownGrace = 15 * time.Second

func newStartCommand() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		prod       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the voice assistant server",
		Long: `Start the voice assistant server. In production mode (--prod, or when a
deployment platform is detected) the server binds all interfaces.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			config.ApplyEnv(cfg)
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if prod && cfg.Server.Host == "" {
				cfg.Server.Host = "0.0.0.0"
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.Server.LogLevel.Slog(),
			}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, app.Providers{}, app.WithLogger(logger))
			if err != nil {
				return err
			}

			runErr := application.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := application.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&host, "host", "", "bind host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "bind port (overrides config)")
	cmd.Flags().BoolVar(&prod, "prod", false, "production mode: bind all interfaces")
	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/approvers/members-db/pkg/config"
	"github.com/approvers/members-db/pkg/observability"
	"github.com/approvers/members-db/pkg/server"
)

var (
	host string
	port int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the members-db HTTP server",
	Long: `Start the HTTP server exposing the OAuth2 linking flow and the
aggregated member directory.

Examples:
  # Start with the default config file
  members-db serve

  # Start with custom config
  members-db serve -c /path/to/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&host, "host", "",
		"Host to bind to (overrides config)")
	serveCmd.Flags().IntVar(&port, "port", 0,
		"Port to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply CLI overrides
	if host != "" {
		cfg.Server.Host = host
	}

	if port != 0 {
		cfg.Server.Port = port
	}

	log.WithFields(logrus.Fields{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"repository": cfg.Repository.Backend,
	}).Info("Starting members-db server")

	// Start observability service
	obsSvc := observability.NewService(log, cfg.Observability)
	if err := obsSvc.Start(ctx); err != nil {
		return fmt.Errorf("starting observability: %w", err)
	}

	defer func() {
		if stopErr := obsSvc.Stop(); stopErr != nil {
			log.WithError(stopErr).Error("Failed to stop observability service")
		}
	}()

	// Build and start the server
	builder := server.NewBuilder(log, cfg)

	svc, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	// Start the server (this blocks until context is cancelled)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}

	log.Info("Shutting down...")

	return svc.Stop()
}

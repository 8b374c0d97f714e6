package main

import (
	"fmt"
	"net"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/kpi-delta/pkg/config"
	"github.com/de-tools/kpi-delta/pkg/server"
	"github.com/de-tools/kpi-delta/pkg/services/analysis"
	"github.com/de-tools/kpi-delta/pkg/store/metrics"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the KPI comparison web service",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "kpi-delta.yaml",
		"Path to the engine configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, db, err := metrics.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close metrics store")
		}
	}()

	ctrl := analysis.NewFromConfig(cfg, store, logger)

	names := make([]string, 0, len(cfg.Narrative.Endpoints))
	for _, ep := range cfg.Narrative.Endpoints {
		names = append(names, ep.Name)
	}
	logger.Info().
		Str("driver", cfg.Storage.Driver).
		Strs("endpoints", names).
		Msg("engine configured")

	host := cfg.Server.Host
	port := cfg.Server.Port
	if host == "" {
		host = os.Getenv("SERVER_HOST")
	}
	if port == "" {
		port = os.Getenv("SERVER_PORT")
	}
	if port == "" {
		port = "8080"
	}

	web := server.NewWebAPI(logger, server.Config{
		Addr:            net.JoinHostPort(host, port),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Runner:        ctrl,
			EndpointNames: names,
		},
	})

	return web.Start()
}

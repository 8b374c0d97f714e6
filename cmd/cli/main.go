package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/kpi-delta/pkg/config"
	"github.com/de-tools/kpi-delta/pkg/models/api"
	"github.com/de-tools/kpi-delta/pkg/services/analysis"
	"github.com/de-tools/kpi-delta/pkg/store/metrics"
)

var (
	cfgPath     string
	requestPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kpi-delta",
		Short: "Period-over-period KPI comparison engine",
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one comparison from a JSON request file",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVarP(&requestPath, "file", "f", "", "Path to the JSON analysis request")
	analyzeCmd.Flags().StringVarP(&cfgPath, "config", "c", "kpi-delta.yaml", "Path to the engine configuration file")
	_ = analyzeCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	raw, err := os.ReadFile(requestPath)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	var req api.AnalyzeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to parse request file: %w", err)
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
	resp := ctrl.Run(ctx, req)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))

	if resp.Status != "success" {
		os.Exit(1)
	}
	return nil
}

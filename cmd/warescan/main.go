package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"warescan/internal/config"
	"warescan/internal/logging"
	"warescan/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Resolved at startup
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "warescan",
	Short: "warescan - warehouse inventory anomaly detection",
	Long: `warescan evaluates configured rules over inventory snapshots and
reports anomalies: stagnant pallets, lot stragglers, overcapacity,
invalid locations, integrity defects and product/zone mismatches.

Each warehouse (tenant) owns its own location catalog and rule set;
snapshots are matched to the right warehouse automatically.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Storage.DataDir, logging.Options{
			Debug:      cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// openStore opens the SQLite-backed store at the configured path.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.Storage.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Storage.DatabasePath(), err)
	}
	return s, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "warescan.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(warehouseCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(reportsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

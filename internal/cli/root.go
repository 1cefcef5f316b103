package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/auditlens/internal/config"
)

const version = "0.1.0"

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailures     = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitRuntimeError = 4
)

// Global flags
var (
	flagConfig   string
	flagProvider string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "auditlens",
	Short: "AI-assisted review of audit findings",
	Long: "auditlens enriches audit findings with an AI second opinion: a suggested severity, " +
		"root cause analysis, a refined recommendation and a risk narrative.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Provider name from the config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		if exitCode == ExitSuccess {
			return ExitUsageError
		}
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print auditlens version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "auditlens version %s\n", version)
	},
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	return m
}

// configPath returns the --config flag or the default location.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.ConfigPath()
}

// loadConfig returns the effective, validated configuration. Failures set
// ExitConfigError.
func loadConfig() (config.Config, error) {
	path, err := configPath()
	if err != nil {
		exitCode = ExitConfigError
		return config.Config{}, err
	}
	cfg, err := config.LoadFrom(path, buildOverrides())
	if err != nil {
		exitCode = ExitConfigError
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		exitCode = ExitConfigError
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

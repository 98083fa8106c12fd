package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zephyrhq/claude-zephyr/internal/version"
)

var rootFlags struct {
	configPath string
	headless   bool
	testTiming bool
	logLevel   string
	jsonLogs   bool
}

var rootCmd = &cobra.Command{
	Use:   "claude-zephyr",
	Short: "Local reverse proxy that routes to the lowest-latency healthy Claude endpoint",
	Long: `claude-zephyr fronts the Claude API with N candidate upstream endpoints and
continuously routes client requests to the endpoint with the lowest observed
response latency, while actively probing all candidates for health.

Examples:
  # Start the server (no dashboard is started)
  claude-zephyr

  # Same as above: --headless is accepted and has no effect
  claude-zephyr --headless

  # Run one round of probes and exit
  claude-zephyr --test-timing`,
	Version:      version.Version,
	RunE:         runServer,
	SilenceUsage: true,
}

// Execute runs the root command and translates the returned error (if
// any) into a process exit code: 0 normal shutdown, 1 configuration
// invalid, 2 bind failure, 130 interrupt.
func Execute() {
	err := rootCmd.Execute()
	os.Exit(exitCodeFor(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "config.toml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.headless, "headless", false, "no effect: the server never starts a dashboard")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.testTiming, "test-timing", false, "run one round of probes, print results, and exit")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
}

func printBanner() {
	fmt.Fprintln(os.Stderr, version.String())
}

package main

import (
	"fmt"
	"os"

	"github.com/artpar/procgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "procgate",
	Short: "Typed procedure server with lazy routing and middleware",
	Long: `procgate serves a tree of typed procedures over HTTP, JSON-RPC and
websocket transports.

Quick start:
  procgate serve      # Start the server
  procgate routes     # Print the route table
  procgate call ping  # Invoke a procedure in-process

Configuration:
  procgate validate   # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "procgate.yaml", "config file path")
}

// loadHolder loads cfgFile when it exists and PROCGATE_* variables
// otherwise. Only file-backed holders can reload.
func loadHolder() (*config.Holder, bool, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if _, err := os.Stat(cfgFile); err == nil {
		h, err := config.NewHolder(cfgFile, logger)
		return h, true, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, false, err
	}
	return config.Static(cfg, logger), false, nil
}

// loadQuiet loads configuration for one-shot commands: no reload, and
// only errors are logged so command output stays readable.
func loadQuiet() (*config.Holder, error) {
	holder, _, err := loadHolder()
	if err != nil {
		return nil, err
	}
	cfg := *holder.Get()
	cfg.Logging.Level = "error"
	return config.Static(&cfg, zerolog.Nop()), nil
}

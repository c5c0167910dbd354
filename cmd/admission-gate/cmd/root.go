// Package cmd provides the CLI commands for the admission gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/admission/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "admission-gate",
	Short: "Admission Gate - fixed-window rate limiting front",
	Long: `Admission Gate decides whether a request may proceed under a
per-client, per-endpoint-class quota and answers denied requests with 429.

It runs in front of an upstream service (reverse proxy mode) or beside a
proxy that asks /v1/admission/check for a decision (auth_request mode).

Quick start:
  1. Create a config file: admission-gate.yaml
  2. Run: admission-gate start

Configuration:
  Config is loaded from admission-gate.yaml in the current directory,
  $HOME/.admission-gate/, or /etc/admission-gate/.

  Environment variables can override config values with the ADMISSION_GATE_ prefix.
  Example: ADMISSION_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gate
  stop        Stop the running gate
  presets     Print the effective preset table
  resolve     Print the client identifier resolved from headers
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./admission-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

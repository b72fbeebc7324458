// Package cmd provides the CLI commands for toolgate.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tool-Gate/toolgate/internal/config"
)

// exitCodeError carries a non-zero process exit status out of a RunE handler.
// Returning it instead of calling os.Exit in place lets deferred cleanup run
// before the process terminates.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var cfgFile string
var modeFlag string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "toolgate - authorization policy engine for agent tool calls",
	Long: `toolgate decides, for every tool an autonomous agent wants to invoke,
whether the call is automatically permitted, automatically refused, or must
be confirmed interactively by a human.

Rules are declared in TOML policy files, grouped into trust tiers
(default < extension < workspace < user < admin). A higher tier always
outranks a lower one; authors reorder rules within their own tier with an
integer priority from 0 to 999.

Quick start:
  1. Create a config file: toolgate.yaml
  2. Inspect the loaded rules: toolgate rules
  3. Decide a call: toolgate check --tool read_file

Configuration:
  Config is loaded from toolgate.yaml in the current directory,
  $HOME/.toolgate/, or /etc/toolgate/.

  Environment variables can override config values with the TOOLGATE_ prefix.
  Example: TOOLGATE_MODE=restricted

Commands:
  check       Decide one tool call
  rules       List the loaded rules with composite priorities
  validate    Load policy directories and report every error
  integrity   Check or accept a policy directory's content hash
  version     Print version information`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command, translating an exitCodeError into the
// process exit status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./toolgate.yaml)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "operating mode override")
}

func initConfig() {
	config.InitViper(cfgFile)
}

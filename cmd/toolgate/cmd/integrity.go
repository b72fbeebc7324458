package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/state"
	"github.com/Tool-Gate/toolgate/internal/service"
)

var integrityScope string

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check or accept a policy directory's content hash",
	Long: `Detect unreviewed modification of a policy directory.

"check" hashes the directory and compares it against the last accepted
baseline; it never modifies the baseline store. "accept" records the
directory's current hash as the new baseline.`,
}

var integrityCheckCmd = &cobra.Command{
	Use:   "check <dir>",
	Short: "Compare a directory against its accepted baseline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := integrityManager()
		if err != nil {
			return err
		}
		dir := args[0]

		res, err := mgr.Check(integrityScope, dir, dir)
		if err != nil {
			return err
		}
		fmt.Printf("status: %s\n", res.Status)
		fmt.Printf("hash:   %s\n", res.Hash)
		fmt.Printf("files:  %d\n", res.FileCount)
		if res.Status == service.IntegrityMismatch {
			return exitCodeError{code: 1}
		}
		return nil
	},
}

var integrityAcceptCmd = &cobra.Command{
	Use:   "accept <dir>",
	Short: "Record a directory's current hash as the trusted baseline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := integrityManager()
		if err != nil {
			return err
		}
		dir := args[0]

		res, err := mgr.Check(integrityScope, dir, dir)
		if err != nil {
			return err
		}
		if err := mgr.Accept(integrityScope, dir, res.Hash); err != nil {
			return err
		}
		fmt.Printf("accepted: %s (%d files)\n", res.Hash, res.FileCount)
		return nil
	},
}

// integrityManager wires the baseline store from config for the integrity
// subcommands.
func integrityManager() (*service.IntegrityManager, error) {
	cfg, err := loadConfigOnly()
	if err != nil {
		return nil, err
	}
	if cfg.Integrity.BaselinePath == "" {
		return nil, errors.New("integrity.baseline_path is not configured")
	}
	logger := newLogger(cfg.LogLevel)
	store := state.NewBaselineStore(cfg.Integrity.BaselinePath, logger)
	return service.NewIntegrityManager(store, logger), nil
}

func init() {
	rootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(integrityCheckCmd)
	integrityCmd.AddCommand(integrityAcceptCmd)
	integrityCmd.PersistentFlags().StringVar(&integrityScope, "scope", "policy", "baseline scope")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load policy directories and report every error",
	Long: `Load all configured policy directories and print the accumulated
load errors without constructing an engine. Exits non-zero when any
declaration was rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		fmt.Printf("rules:    %d\n", len(a.loaded.Rules))
		fmt.Printf("checkers: %d\n", len(a.loaded.Checkers))
		fmt.Printf("errors:   %d\n", len(a.loaded.Errors))

		for _, lerr := range a.loaded.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", lerr.Error())
		}
		if len(a.loaded.Errors) > 0 {
			return exitCodeError{code: 1}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the loaded rules with composite priorities",
	Long: `List every loaded rule, highest composite priority first, with its
decision, provenance, and any mode restriction. Safety checkers are listed
separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		for _, r := range a.engine.Rules() {
			name := r.ToolName
			if name == "" {
				name = "*"
			}
			line := fmt.Sprintf("%8.3f  %-8s  %-40s  %s", r.Priority, r.Action, name, r.Source)
			if len(r.Modes) > 0 {
				line += fmt.Sprintf("  modes=%v", r.Modes)
			}
			fmt.Println(line)
		}

		checkers := a.engine.Checkers()
		if len(checkers) > 0 {
			fmt.Println()
			for _, c := range checkers {
				name := c.ToolName
				if name == "" {
					name = "*"
				}
				fmt.Printf("%8.3f  checker   %-40s  %s (%s)\n", c.Priority, name, c.Name(), c.Source)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

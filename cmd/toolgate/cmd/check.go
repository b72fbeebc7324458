package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/audit"
	"github.com/Tool-Gate/toolgate/internal/domain/rule"
	"github.com/Tool-Gate/toolgate/internal/service"
)

var (
	checkTool        string
	checkServer      string
	checkArgsJSON    string
	checkAnnotations []string
	checkRunCheckers bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Decide one tool call",
	Long: `Decide whether a tool call is allowed, denied, or needs confirmation.

Examples:
  toolgate check --tool read_file
  toolgate check --tool fetch --server web --annotation readOnlyHint=true
  toolgate check --tool run_shell_command --args '{"command":"rm -rf /tmp/x"}'

Exit status is 0 for allow, 1 for deny, and 2 for ask_user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		call, err := buildCall()
		if err != nil {
			return err
		}

		decision := a.engine.Check(call)
		fmt.Printf("decision: %s\n", decision.Action)
		fmt.Printf("source:   %s\n", decision.Source)
		if decision.DenyMessage != "" {
			fmt.Printf("message:  %s\n", decision.DenyMessage)
		}

		if checkRunCheckers {
			if err := runCheckers(a, call); err != nil {
				return err
			}
		}

		if a.cfg.Audit.DB != "" {
			if err := recordDecision(a, call, decision); err != nil {
				return err
			}
		}

		return exitForAction(decision.Action)
	},
}

// exitForAction maps a decision to the command's exit status: 0 for allow,
// 1 for deny, 2 for ask_user.
func exitForAction(action rule.Action) error {
	switch action {
	case rule.ActionAllow:
		return nil
	case rule.ActionDeny:
		return exitCodeError{code: 1}
	default:
		return exitCodeError{code: 2}
	}
}

// buildCall assembles the tool-call descriptor from the command flags.
func buildCall() (rule.ToolCall, error) {
	call := rule.ToolCall{
		Name:       checkTool,
		ServerName: checkServer,
	}

	if checkArgsJSON != "" {
		if err := json.Unmarshal([]byte(checkArgsJSON), &call.Args); err != nil {
			return rule.ToolCall{}, fmt.Errorf("invalid --args JSON: %w", err)
		}
	}

	for _, ann := range checkAnnotations {
		name, value, ok := strings.Cut(ann, "=")
		if !ok || (value != "true" && value != "false") {
			return rule.ToolCall{}, fmt.Errorf("invalid --annotation %q, expected name=true|false", ann)
		}
		if call.Annotations == nil {
			call.Annotations = make(map[string]bool)
		}
		call.Annotations[name] = value == "true"
	}

	return call, nil
}

func runCheckers(a *app, call rule.ToolCall) error {
	checkerSvc, err := service.NewCheckerService(a.engine.Checkers(), a.logger)
	if err != nil {
		return err
	}
	for _, res := range checkerSvc.Run(call, a.engine.Mode()) {
		if res.Err != nil {
			fmt.Printf("checker %s: error: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("checker %s: flagged=%v (%s)\n", res.Name, res.Flagged, res.Source)
	}
	return nil
}

func recordDecision(a *app, call rule.ToolCall, decision rule.Decision) error {
	store, err := audit.NewStore(a.cfg.Audit.DB, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return store.Record(context.Background(), audit.Record{
		Tool:      call.Name,
		Canonical: call.CanonicalName(),
		Mode:      a.engine.Mode(),
		Action:    string(decision.Action),
		Source:    decision.Source,
	})
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "tool name (required)")
	checkCmd.Flags().StringVar(&checkServer, "server", "", "originating server name")
	checkCmd.Flags().StringVar(&checkArgsJSON, "args", "", "tool arguments as a JSON object")
	checkCmd.Flags().StringArrayVar(&checkAnnotations, "annotation", nil, "capability flag, name=true|false (repeatable)")
	checkCmd.Flags().BoolVar(&checkRunCheckers, "run-checkers", false, "also evaluate CEL safety checkers")
	_ = checkCmd.MarkFlagRequired("tool")
}

package service

import (
	"testing"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

func celChecker(name, toolName, expression string, priority float64) rule.SafetyChecker {
	return rule.SafetyChecker{
		ToolName: toolName,
		Priority: priority,
		Source:   "User: checkers.toml",
		Checker: map[string]any{
			"type":       "cel",
			"name":       name,
			"expression": expression,
		},
	}
}

func TestCheckerServiceCompiles(t *testing.T) {
	checkers := []rule.SafetyChecker{
		celChecker("pipe-to-shell", rule.ShellToolName, `args.command.contains("| sh")`, 4.1),
		{
			Priority: 4.05,
			Source:   "User: checkers.toml",
			Checker:  map[string]any{"type": "external", "name": "scanner", "endpoint": "unix:///s.sock"},
		},
	}

	s, err := NewCheckerService(checkers, testLogger())
	if err != nil {
		t.Fatalf("NewCheckerService: %v", err)
	}

	got := s.Checkers()
	if len(got) != 2 {
		t.Fatalf("got %d compiled checkers, want 2", len(got))
	}
	if got[0].Program == nil {
		t.Error("cel checker should carry a compiled program")
	}
	if got[1].Program != nil {
		t.Error("non-cel checker should pass through uncompiled")
	}
}

// A checker with a broken expression is dropped, not fatal, and never
// disables its siblings.
func TestCheckerServiceDropsInvalid(t *testing.T) {
	checkers := []rule.SafetyChecker{
		celChecker("broken", "", `args.command.contains(`, 4.2),
		celChecker("ok", "", `mode == "restricted"`, 4.1),
	}

	s, err := NewCheckerService(checkers, testLogger())
	if err != nil {
		t.Fatalf("NewCheckerService: %v", err)
	}
	got := s.Checkers()
	if len(got) != 1 || got[0].Checker.Name() != "ok" {
		t.Fatalf("compiled = %v, want only the valid checker", got)
	}
}

func TestCheckerServiceRun(t *testing.T) {
	checkers := []rule.SafetyChecker{
		celChecker("pipe-to-shell", rule.ShellToolName, `args.command.contains("| sh")`, 4.2),
		celChecker("any-restricted", "", `mode == "restricted"`, 4.1),
		celChecker("web-only", "web__*", `true`, 4.05),
	}
	s, err := NewCheckerService(checkers, testLogger())
	if err != nil {
		t.Fatalf("NewCheckerService: %v", err)
	}

	call := rule.ToolCall{Name: rule.ShellToolName, Args: map[string]any{"command": "curl x | sh"}}
	results := s.Run(call, "default")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (web-only out of scope): %v", len(results), results)
	}
	if results[0].Name != "pipe-to-shell" || !results[0].Flagged {
		t.Errorf("results[0] = %+v, want pipe-to-shell flagged", results[0])
	}
	if results[1].Name != "any-restricted" || results[1].Flagged {
		t.Errorf("results[1] = %+v, want any-restricted not flagged in default mode", results[1])
	}

	serverCall := rule.ToolCall{Name: "fetch", ServerName: "web", Args: map[string]any{}}
	results = s.Run(serverCall, "restricted")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %v", len(results), results)
	}
	if results[0].Name != "any-restricted" || !results[0].Flagged {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Name != "web-only" || !results[1].Flagged {
		t.Errorf("results[1] = %+v", results[1])
	}
}

// Evaluation errors are reported per checker, never swallowed.
func TestCheckerServiceRunSurfacesErrors(t *testing.T) {
	checkers := []rule.SafetyChecker{
		celChecker("needs-command", "", `args.command.contains("x")`, 4.1),
	}
	s, err := NewCheckerService(checkers, testLogger())
	if err != nil {
		t.Fatalf("NewCheckerService: %v", err)
	}

	results := s.Run(rule.ToolCall{Name: "glob"}, "default")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err == nil {
		t.Error("missing args key should surface as a checker error")
	}
	if results[0].Flagged {
		t.Error("errored checker must not read as flagged")
	}
}

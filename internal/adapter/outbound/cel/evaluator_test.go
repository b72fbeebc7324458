package cel

import (
	"strings"
	"testing"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func TestEvaluateCommandExpression(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`args.command.startsWith("rm ")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	call := rule.ToolCall{Name: "run_shell_command", Args: map[string]any{"command": "rm -rf /tmp/x"}}
	got, err := e.Evaluate(prg, call, "default")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got {
		t.Error("expression should flag an rm command")
	}

	call.Args["command"] = "ls -la"
	got, err = e.Evaluate(prg, call, "default")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got {
		t.Error("expression should not flag ls")
	}
}

func TestEvaluateExposedVariables(t *testing.T) {
	e := newTestEvaluator(t)
	tests := []struct {
		expr string
		call rule.ToolCall
		mode string
		want bool
	}{
		{`tool_name == "fetch"`, rule.ToolCall{Name: "fetch"}, "default", true},
		{`server_name == "web"`, rule.ToolCall{Name: "fetch", ServerName: "web"}, "default", true},
		{`canonical_name == "web__fetch"`, rule.ToolCall{Name: "fetch", ServerName: "web"}, "default", true},
		{`mode == "restricted"`, rule.ToolCall{Name: "fetch"}, "restricted", true},
		{`"command" in args`, rule.ToolCall{Name: "x", Args: map[string]any{"command": "ls"}}, "default", true},
		{`"command" in args`, rule.ToolCall{Name: "x"}, "default", false},
		{`annotations["readOnlyHint"]`, rule.ToolCall{Name: "x", Annotations: map[string]bool{"readOnlyHint": true}}, "default", true},
	}
	for _, tt := range tests {
		prg, err := e.Compile(tt.expr)
		if err != nil {
			t.Fatalf("Compile %q: %v", tt.expr, err)
		}
		got, err := e.Evaluate(prg, tt.call, tt.mode)
		if err != nil {
			t.Fatalf("Evaluate %q: %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("%q = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateNonBooleanResult(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`tool_name`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Evaluate(prg, rule.ToolCall{Name: "fetch"}, "default"); err == nil {
		t.Error("non-boolean expression result should be an error")
	}
}

func TestEvaluateMissingKey(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`args.command.startsWith("rm")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := e.Evaluate(prg, rule.ToolCall{Name: "x"}, "default"); err == nil {
		t.Error("unguarded access to a missing args key should be an evaluation error")
	}
}

func TestValidateExpression(t *testing.T) {
	e := newTestEvaluator(t)

	if err := e.ValidateExpression(`args.command.contains("sudo")`); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := e.ValidateExpression(""); err == nil {
		t.Error("empty expression should be rejected")
	}
	if err := e.ValidateExpression(`tool_name == `); err == nil {
		t.Error("syntactically invalid expression should be rejected")
	}
	if err := e.ValidateExpression(`tool_name == no_such_var`); err == nil {
		t.Error("undeclared variable should be rejected at compile time")
	}

	long := `tool_name == "` + strings.Repeat("a", maxExpressionLength) + `"`
	if err := e.ValidateExpression(long); err == nil {
		t.Error("over-length expression should be rejected")
	}

	deep := strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1)
	if err := e.ValidateExpression(deep); err == nil {
		t.Error("over-nested expression should be rejected")
	}
}

// Package cel provides a CEL-based evaluator for safety-checker expressions.
// The decision engine never calls into this package; it sorts and surfaces
// checkers, and hosts evaluate them here.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// maxExpressionLength caps checker expressions to keep untrusted policy files
// from smuggling in pathological inputs.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum parenthesis/bracket nesting depth accepted.
const maxNestingDepth = 50

// evalTimeout bounds a single checker evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions for safety checkers.
type Evaluator struct {
	env *cel.Env
}

// NewCheckerEnvironment creates a CEL environment exposing the tool-call
// descriptor to checker expressions.
func NewCheckerEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("server_name", cel.StringType),
		cel.Variable("canonical_name", cel.StringType),
		cel.Variable("mode", cel.StringType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("annotations", cel.MapType(cel.StringType, cel.BoolType)),
	)
}

// NewEvaluator creates a new CEL evaluator with the checker environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewCheckerEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create checker environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks an expression, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting rejects expressions whose parenthesis, bracket, or brace
// nesting exceeds the allowed depth.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that an expression is syntactically valid and
// within the safety limits, without building a reusable program.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}

	return nil
}

// Evaluate runs a compiled program against a tool call in the given mode.
// Returns the boolean the expression produced.
func (e *Evaluator) Evaluate(prg cel.Program, call rule.ToolCall, mode string) (bool, error) {
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	annotations := call.Annotations
	if annotations == nil {
		annotations = map[string]bool{}
	}

	activation := map[string]any{
		"tool_name":      call.Name,
		"server_name":    call.ServerName,
		"canonical_name": call.CanonicalName(),
		"mode":           mode,
		"args":           args,
		"annotations":    annotations,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

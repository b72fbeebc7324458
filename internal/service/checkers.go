package service

import (
	"fmt"
	"log/slog"

	celapi "github.com/google/cel-go/cel"

	celeval "github.com/Tool-Gate/toolgate/internal/adapter/outbound/cel"
	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// celCheckerType is the checker descriptor type this service can evaluate.
const celCheckerType = "cel"

// CompiledChecker pairs a loaded safety checker with its compiled program,
// when the checker is of a type this service understands. Opaque checker
// types are carried through uncompiled for other collaborators.
type CompiledChecker struct {
	Checker rule.SafetyChecker
	Program celapi.Program // nil for non-CEL checkers
}

// CheckerResult is the outcome of running one checker against a tool call.
type CheckerResult struct {
	Name    string
	Source  string
	Flagged bool
	Err     error
}

// CheckerService evaluates "cel"-typed safety checkers on behalf of the host.
// The decision engine itself never consults checkers.
type CheckerService struct {
	evaluator *celeval.Evaluator
	compiled  []CompiledChecker
	logger    *slog.Logger
}

// NewCheckerService compiles the CEL checkers in the given (already sorted)
// list. A checker whose expression fails to compile is dropped with a
// warning; one bad checker never disables the rest.
func NewCheckerService(checkers []rule.SafetyChecker, logger *slog.Logger) (*CheckerService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create checker evaluator: %w", err)
	}

	s := &CheckerService{evaluator: evaluator, logger: logger}
	for _, c := range checkers {
		if c.Type() != celCheckerType {
			s.compiled = append(s.compiled, CompiledChecker{Checker: c})
			continue
		}
		expr, _ := c.Checker["expression"].(string)
		if err := evaluator.ValidateExpression(expr); err != nil {
			logger.Warn("dropping checker with invalid expression",
				"checker", c.Name(), "source", c.Source, "error", err)
			continue
		}
		prg, err := evaluator.Compile(expr)
		if err != nil {
			logger.Warn("dropping checker that failed to compile",
				"checker", c.Name(), "source", c.Source, "error", err)
			continue
		}
		s.compiled = append(s.compiled, CompiledChecker{Checker: c, Program: prg})
	}

	logger.Debug("checker service ready", "checkers", len(s.compiled))
	return s, nil
}

// Checkers returns the compiled checker list in priority order.
func (s *CheckerService) Checkers() []CompiledChecker {
	return append([]CompiledChecker(nil), s.compiled...)
}

// Run evaluates every CEL checker whose tool name applies to the call.
// Non-CEL checkers are skipped; their descriptors remain available through
// Checkers for collaborators that understand them.
func (s *CheckerService) Run(call rule.ToolCall, mode string) []CheckerResult {
	canonical := call.CanonicalName()
	var results []CheckerResult
	for _, cc := range s.compiled {
		if cc.Program == nil {
			continue
		}
		if name := cc.Checker.ToolName; name != "" && !rule.MatchesToolName(name, canonical) {
			continue
		}
		flagged, err := s.evaluator.Evaluate(cc.Program, call, mode)
		results = append(results, CheckerResult{
			Name:    cc.Checker.Name(),
			Source:  cc.Checker.Source,
			Flagged: flagged,
			Err:     err,
		})
	}
	return results
}

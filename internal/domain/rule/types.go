// Package rule contains domain types for tool-call authorization rules.
package rule

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Action represents the kind of decision a rule produces.
type Action string

const (
	// ActionAllow permits the tool call without confirmation.
	ActionAllow Action = "allow"
	// ActionDeny refuses the tool call.
	ActionDeny Action = "deny"
	// ActionAskUser requires interactive confirmation before the call proceeds.
	ActionAskUser Action = "ask_user"
)

// ServerToolSeparator joins a server name and a tool name into a canonical
// two-segment tool name ("server__tool").
const ServerToolSeparator = "__"

// ShellToolName is the tool name command-prefix and command-regex rules bind to.
const ShellToolName = "run_shell_command"

// Rule is one immutable authorization rule. Rules are built by the loader
// (or injected at runtime) and never mutated afterwards.
type Rule struct {
	// ToolName is the tool this rule applies to. Empty means the rule is a
	// catch-all and matches every tool. The two-segment "server__tool" form
	// may use "*" for either segment.
	ToolName string
	// ArgsPattern, when set, is tested against the tool call's arguments
	// serialized as a single JSON string.
	ArgsPattern *regexp.Regexp
	// ToolAnnotations maps capability-flag names to the value the call must
	// report for this rule to match.
	ToolAnnotations map[string]bool
	// Action is the decision this rule produces when it wins.
	Action Action
	// Priority is the composite ordering key: tier + declared/1000. Higher wins.
	Priority float64
	// Modes restricts the rule to the named operating modes. Empty means the
	// rule applies in every mode.
	Modes []string
	// DenyMessage is surfaced to the user when this rule causes a denial.
	DenyMessage string
	// AllowRedirection permits shell output redirection under a prefix match.
	AllowRedirection bool
	// Source records where the rule came from, e.g. "User: policies.toml".
	Source string
}

// AppliesInMode reports whether the rule is active in the given operating mode.
func (r Rule) AppliesInMode(mode string) bool {
	if len(r.Modes) == 0 {
		return true
	}
	for _, m := range r.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// SafetyChecker delegates a safety predicate to an external collaborator.
// Checkers share the rule tier/priority treatment but are never evaluated by
// the engine's matching path, only sorted and surfaced.
type SafetyChecker struct {
	// ToolName scopes the checker; empty applies it to every tool.
	ToolName string
	// Priority is the composite ordering key, same algebra as Rule.
	Priority float64
	// Checker is the opaque descriptor ("type", "name", plus checker-specific
	// fields) handed to the collaborator.
	Checker map[string]any
	// Source records where the checker came from.
	Source string
}

// Type returns the checker descriptor's "type" field, or "" when absent.
func (c SafetyChecker) Type() string {
	s, _ := c.Checker["type"].(string)
	return s
}

// Name returns the checker descriptor's "name" field, or "" when absent.
func (c SafetyChecker) Name() string {
	s, _ := c.Checker["name"].(string)
	return s
}

// ToolCall describes one tool invocation the engine is asked to authorize.
type ToolCall struct {
	// Name is the tool name as the host knows it.
	Name string
	// ServerName identifies the originating sub-system, if any.
	ServerName string
	// Args are the call's arguments.
	Args map[string]any
	// Annotations are the capability flags the tool reports (e.g. readOnlyHint).
	Annotations map[string]bool
}

// CanonicalName returns the two-segment "server__tool" name when a server is
// given and the name is not already qualified, otherwise the plain name.
func (c ToolCall) CanonicalName() string {
	if c.ServerName != "" && !strings.Contains(c.Name, ServerToolSeparator) {
		return c.ServerName + ServerToolSeparator + c.Name
	}
	return c.Name
}

// ArgsJSON returns the call arguments serialized as a single JSON object
// string. Map keys are serialized in sorted order, so the result is
// deterministic for a given argument set.
func (c ToolCall) ArgsJSON() string {
	if c.Args == nil {
		return "{}"
	}
	data, err := json.Marshal(c.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Decision is the outcome of checking one tool call.
type Decision struct {
	// Action is the winning rule's decision kind.
	Action Action
	// Source is the provenance of the winning rule, or "default" when no
	// rule matched.
	Source string
	// DenyMessage explains a denial to the user, when the winning rule set one.
	DenyMessage string
	// Reason is a short diagnostic description of how the decision was made.
	Reason string
}

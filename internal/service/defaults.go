package service

import (
	"github.com/google/uuid"

	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/ruleset"
	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// defaultSource marks rules that ship with the engine rather than coming from
// a policy file.
const defaultSource = "Default: built-in"

// DefaultRules returns the built-in tier-default rule set, used when no
// policy directories are configured. It keeps the engine usable out of the
// box: read-only annotated tools are allowed, privilege escalation through
// the shell is refused, and everything else falls through to confirmation.
func DefaultRules() []rule.Rule {
	sudo, _ := ruleset.CommandPrefixPattern("sudo ")

	return []rule.Rule{
		{
			Action:   rule.ActionAskUser,
			Priority: rule.ComposePriority(rule.TierDefault, 0),
			Source:   defaultSource,
		},
		{
			ToolAnnotations: map[string]bool{"readOnlyHint": true},
			Action:          rule.ActionAllow,
			Priority:        rule.ComposePriority(rule.TierDefault, 10),
			Source:          defaultSource,
		},
		{
			ToolName:    rule.ShellToolName,
			ArgsPattern: sudo,
			Action:      rule.ActionDeny,
			Priority:    rule.ComposePriority(rule.TierDefault, 20),
			DenyMessage: "privilege escalation is not permitted",
			Source:      defaultSource,
		},
	}
}

// InjectedRule builds the allow rule registered for a capability discovered
// at runtime, e.g. a newly spawned sub-agent becoming an invocable tool. The
// fixed priority sits below catch-all override slots on purpose.
func InjectedRule(toolName string) rule.Rule {
	return rule.Rule{
		ToolName: toolName,
		Action:   rule.ActionAllow,
		Priority: DefaultInjectedPriority,
		Source:   "Runtime: " + uuid.NewString(),
	}
}

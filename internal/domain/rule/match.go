package rule

import "strings"

// MatchesToolName reports whether a rule tool-name pattern matches a canonical
// call name. Plain patterns match by exact equality. Two-segment patterns
// ("server__tool", where either segment may be "*") only ever match canonical
// names that themselves contain the separator: a bare tool name never
// satisfies a "*__*"-style pattern.
func MatchesToolName(pattern, canonical string) bool {
	if pattern == canonical {
		return true
	}
	if !strings.Contains(pattern, ServerToolSeparator) {
		return false
	}
	if !strings.Contains(canonical, ServerToolSeparator) {
		return false
	}
	pServer, pTool, _ := strings.Cut(pattern, ServerToolSeparator)
	cServer, cTool, _ := strings.Cut(canonical, ServerToolSeparator)
	return segmentMatches(pServer, cServer) && segmentMatches(pTool, cTool)
}

// segmentMatches matches one segment of a two-segment pattern: "*" matches any
// non-empty value, anything else must match exactly.
func segmentMatches(pattern, value string) bool {
	if pattern == "*" {
		return value != ""
	}
	return pattern == value
}

// Matches reports whether the rule applies to the given call. The mode filter
// is handled separately by the engine; this covers tool name, serialized-args
// pattern, and annotation predicates.
func (r Rule) Matches(call ToolCall) bool {
	if r.ToolName != "" && !MatchesToolName(r.ToolName, call.CanonicalName()) {
		return false
	}
	if r.ArgsPattern != nil && !r.ArgsPattern.MatchString(call.ArgsJSON()) {
		return false
	}
	for flag, want := range r.ToolAnnotations {
		got, ok := call.Annotations[flag]
		if !ok || got != want {
			return false
		}
	}
	return true
}

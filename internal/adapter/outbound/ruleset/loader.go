// Package ruleset loads declarative TOML policy files into compiled
// authorization rules. Loading is partial-failure tolerant: errors are
// accumulated per file and per rule, and never abort the rest of the load.
package ruleset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
	"github.com/Tool-Gate/toolgate/internal/metrics"
)

// commandKeyPrefix anchors a command-prefix pattern to the "command" field of
// the serialized-args JSON. Patterns are tested against the full JSON object
// text, never the bare command string, so a caret in a user-supplied
// commandRegex will not match at the true start of the command.
const commandKeyPrefix = `"command":"`

// CommandPrefixPattern builds the pattern a commandPrefix shorthand compiles
// to: the escaped prefix anchored to the command key of the serialized-args
// JSON.
func CommandPrefixPattern(prefix string) (*regexp.Regexp, error) {
	return regexp.Compile(commandKeyPrefix + regexp.QuoteMeta(prefix))
}

// TierResolver maps a policy directory to the trust tier of its rules.
type TierResolver func(dir string) rule.Tier

// Result is the outcome of loading one or more policy directories.
type Result struct {
	Rules    []rule.Rule
	Checkers []rule.SafetyChecker
	Errors   []rule.LoadError
}

// ruleFile is the top-level shape of one policy document. Rule and checker
// blocks are kept as TOML primitives so one malformed block can be reported
// without discarding its siblings.
type ruleFile struct {
	Rules    []toml.Primitive `toml:"rules"`
	Checkers []toml.Primitive `toml:"checkers"`
}

// Loader reads and compiles policy directories.
type Loader struct {
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// WithMetrics attaches Prometheus metrics to the loader; accumulated load
// errors are counted by type.
func (l *Loader) WithMetrics(m *metrics.Metrics) *Loader {
	l.metrics = m
	return l
}

// Load reads every "*.toml" file in the given directories, validates and
// expands the declared rules, and stamps each with its composite priority and
// provenance. A missing directory contributes zero rules; any other
// directory-level I/O error aborts the load, since it indicates an
// environment problem rather than a content problem.
func (l *Loader) Load(dirs []string, tierOf TierResolver) (*Result, error) {
	res := &Result{}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Debug("policy directory not found, skipping", "dir", dir)
				continue
			}
			return nil, fmt.Errorf("read policy directory %s: %w", dir, err)
		}

		tier := tierOf(dir)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			l.loadFile(filepath.Join(dir, name), tier, res)
		}
	}

	sortCheckers(res.Checkers)

	if l.metrics != nil {
		for _, e := range res.Errors {
			l.metrics.LoadErrorsTotal.WithLabelValues(string(e.Type)).Inc()
		}
	}

	l.logger.Info("policy load complete",
		"dirs", len(dirs),
		"rules", len(res.Rules),
		"checkers", len(res.Checkers),
		"errors", len(res.Errors),
	)
	return res, nil
}

// loadFile parses one policy file and appends its rules, checkers, and errors
// to the result.
func (l *Loader) loadFile(path string, tier rule.Tier, res *Result) {
	fileName := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		res.Errors = append(res.Errors, rule.LoadError{
			Type:    rule.LoadErrFileRead,
			File:    fileName,
			Message: "cannot read policy file",
			Details: err.Error(),
		})
		return
	}

	var doc ruleFile
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		res.Errors = append(res.Errors, rule.LoadError{
			Type:    rule.LoadErrTOMLParse,
			File:    fileName,
			Message: "invalid TOML document",
			Details: err.Error(),
		})
		return
	}

	source := tier.Label() + ": " + fileName

	for i, prim := range doc.Rules {
		rules, lerr := l.compileRule(md, prim, tier, source)
		if lerr != nil {
			lerr.File = fileName
			lerr.Message = fmt.Sprintf("rules[%d]: %s", i, lerr.Message)
			res.Errors = append(res.Errors, *lerr)
			continue
		}
		res.Rules = append(res.Rules, rules...)
	}

	for i, prim := range doc.Checkers {
		checkers, lerr := l.compileChecker(md, prim, tier, source)
		if lerr != nil {
			lerr.File = fileName
			lerr.Message = fmt.Sprintf("checkers[%d]: %s", i, lerr.Message)
			res.Errors = append(res.Errors, *lerr)
			continue
		}
		res.Checkers = append(res.Checkers, checkers...)
	}
}

// compileRule runs one declaration through the validate -> cross-check ->
// compile -> expand pipeline. It returns one rule per toolName/commandPrefix
// combination (array-cartesian expansion), or a single LoadError describing
// why the declaration was rejected.
func (l *Loader) compileRule(md toml.MetaData, prim toml.Primitive, tier rule.Tier, source string) ([]rule.Rule, *rule.LoadError) {
	var d ruleDecl
	if err := md.PrimitiveDecode(prim, &d); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "invalid rule declaration", Details: err.Error()}
	}
	if err := l.validate.Struct(d); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: formatValidationError(err)}
	}
	if err := checkIntegerPriority(d.Priority); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: err.Error()}
	}

	toolNames, ok := stringList(d.ToolName)
	if !ok {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "toolName must be a string or an array of strings"}
	}
	prefixes, ok := stringList(d.CommandPrefix)
	if !ok {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "commandPrefix must be a string or an array of strings"}
	}

	// Cross-field validation: the shell shorthands are mutually exclusive with
	// each other and with a raw args pattern, and only legal on the shell tool.
	set := 0
	for _, present := range []bool{len(prefixes) > 0, d.CommandRegex != "", d.ArgsPattern != ""} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, &rule.LoadError{Type: rule.LoadErrRule, Message: "commandPrefix, commandRegex, and argsPattern are mutually exclusive"}
	}
	if len(prefixes) > 0 || d.CommandRegex != "" {
		if len(toolNames) == 0 {
			toolNames = []string{rule.ShellToolName}
		}
		for _, name := range toolNames {
			if name != rule.ShellToolName {
				return nil, &rule.LoadError{
					Type:    rule.LoadErrRule,
					Message: fmt.Sprintf("commandPrefix/commandRegex require toolName %q, got %q", rule.ShellToolName, name),
				}
			}
		}
	}

	// Server-qualified naming: combine the server with each tool name using
	// the two-segment convention. A server with no tool names means every
	// tool on that server.
	if server := d.server(); server != "" {
		if len(toolNames) == 0 {
			toolNames = []string{"*"}
		}
		for i, name := range toolNames {
			toolNames[i] = server + rule.ServerToolSeparator + name
		}
	}
	if len(toolNames) == 0 {
		// Catch-all: one rule matching every tool.
		toolNames = []string{""}
	}

	// Pattern compilation. Prefix shorthands become literal-prefix patterns
	// anchored to the command key of the serialized-args JSON.
	var patterns []*regexp.Regexp
	switch {
	case len(prefixes) > 0:
		for _, p := range prefixes {
			re, err := CommandPrefixPattern(p)
			if err != nil {
				return nil, &rule.LoadError{Type: rule.LoadErrRegex, Message: fmt.Sprintf("invalid commandPrefix %q", p), Details: err.Error()}
			}
			patterns = append(patterns, re)
		}
	case d.CommandRegex != "":
		re, err := regexp.Compile(d.CommandRegex)
		if err != nil {
			return nil, &rule.LoadError{Type: rule.LoadErrRegex, Message: fmt.Sprintf("invalid commandRegex %q", d.CommandRegex), Details: err.Error()}
		}
		patterns = []*regexp.Regexp{re}
	case d.ArgsPattern != "":
		re, err := regexp.Compile(d.ArgsPattern)
		if err != nil {
			return nil, &rule.LoadError{Type: rule.LoadErrRegex, Message: fmt.Sprintf("invalid argsPattern %q", d.ArgsPattern), Details: err.Error()}
		}
		patterns = []*regexp.Regexp{re}
	default:
		patterns = []*regexp.Regexp{nil}
	}

	priority := rule.ComposePriority(tier, int(*d.Priority))
	rules := make([]rule.Rule, 0, len(toolNames)*len(patterns))
	for _, name := range toolNames {
		for _, pat := range patterns {
			rules = append(rules, rule.Rule{
				ToolName:         name,
				ArgsPattern:      pat,
				ToolAnnotations:  d.ToolAnnotations,
				Action:           rule.Action(d.Decision),
				Priority:         priority,
				Modes:            d.Modes,
				DenyMessage:      d.DenyMessage,
				AllowRedirection: d.AllowRedirection,
				Source:           source,
			})
		}
	}
	return rules, nil
}

// compileChecker validates one safety-checker declaration. The checker
// descriptor stays opaque beyond requiring "type" and "name".
func (l *Loader) compileChecker(md toml.MetaData, prim toml.Primitive, tier rule.Tier, source string) ([]rule.SafetyChecker, *rule.LoadError) {
	var d checkerDecl
	if err := md.PrimitiveDecode(prim, &d); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "invalid checker declaration", Details: err.Error()}
	}
	if err := l.validate.Struct(d); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: formatValidationError(err)}
	}
	if err := checkIntegerPriority(d.Priority); err != nil {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: err.Error()}
	}
	if t, _ := d.Checker["type"].(string); t == "" {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "checker.type is required and must be a string"}
	}
	if n, _ := d.Checker["name"].(string); n == "" {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "checker.name is required and must be a string"}
	}

	toolNames, ok := stringList(d.ToolName)
	if !ok {
		return nil, &rule.LoadError{Type: rule.LoadErrSchema, Message: "toolName must be a string or an array of strings"}
	}
	if server := d.server(); server != "" {
		if len(toolNames) == 0 {
			toolNames = []string{"*"}
		}
		for i, name := range toolNames {
			toolNames[i] = server + rule.ServerToolSeparator + name
		}
	}
	if len(toolNames) == 0 {
		toolNames = []string{""}
	}

	priority := rule.ComposePriority(tier, int(*d.Priority))
	checkers := make([]rule.SafetyChecker, 0, len(toolNames))
	for _, name := range toolNames {
		checkers = append(checkers, rule.SafetyChecker{
			ToolName: name,
			Priority: priority,
			Checker:  d.Checker,
			Source:   source,
		})
	}
	return checkers, nil
}

// sortCheckers orders checkers by composite priority descending, preserving
// load order among equals.
func sortCheckers(checkers []rule.SafetyChecker) {
	sort.SliceStable(checkers, func(i, j int) bool {
		return checkers[i].Priority > checkers[j].Priority
	})
}

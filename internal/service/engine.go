// Package service contains application services built on the rule domain.
package service

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
	"github.com/Tool-Gate/toolgate/internal/metrics"
)

// DefaultInjectedPriority is the composite priority for rules injected at
// runtime (e.g. a just-discovered sub-agent registered as an invocable tool).
// It sits below the 0.060 slot so a mode-scoped catch-all shipped at the
// default tier can still override an injected allow.
var DefaultInjectedPriority = rule.ComposePriority(rule.TierDefault, 50)

// ruleIndex provides O(1) lookup for exact tool names. Rules whose name is
// empty (catch-all) or contains a "*" segment live in the general bucket.
type ruleIndex struct {
	exact   map[string][]rule.Rule
	general []rule.Rule
}

// ruleSnapshot is the immutable rule set published via atomic.Value.
// Concurrent Check calls observe either the old or the new snapshot in full,
// never a mix.
type ruleSnapshot struct {
	rules []rule.Rule
	index *ruleIndex
}

// Engine holds the compiled rule set and answers tool-call authorization
// checks. The matching path is a pure read over the active snapshot; AddRule
// and Reload build a replacement snapshot off to the side and swap it in.
type Engine struct {
	mode       string
	snapshot   atomic.Value // stores *ruleSnapshot
	checkers   []rule.SafetyChecker
	mu         sync.Mutex // serializes AddRule/Reload writers
	cache      *decisionCache
	generation atomic.Uint64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCacheSize sets the maximum number of cached decisions.
func WithCacheSize(size int) EngineOption {
	return func(e *Engine) {
		e.cache = newDecisionCache(size)
	}
}

// WithMetrics attaches Prometheus metrics to the engine.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCheckers attaches the loaded safety checkers. The engine only sorts and
// surfaces them; evaluation belongs to a collaborator.
func WithCheckers(checkers []rule.SafetyChecker) EngineOption {
	return func(e *Engine) {
		cs := append([]rule.SafetyChecker(nil), checkers...)
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Priority > cs[j].Priority })
		e.checkers = cs
	}
}

// NewEngine creates an Engine from an already-loaded rule set and the current
// operating mode.
func NewEngine(rules []rule.Rule, mode string, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		mode:   mode,
		cache:  newDecisionCache(1000),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	snap := buildSnapshot(rules)
	e.snapshot.Store(snap)
	e.publishGauges(snap)

	logger.Info("decision engine initialized",
		"mode", mode,
		"rules", len(snap.rules),
		"exact_names", len(snap.index.exact),
		"general_rules", len(snap.index.general),
		"checkers", len(e.checkers),
	)
	return e
}

// buildSnapshot sorts rules by composite priority descending (stable, so load
// order breaks ties) and indexes them by tool name.
func buildSnapshot(rules []rule.Rule) *ruleSnapshot {
	sorted := append([]rule.Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	idx := &ruleIndex{exact: make(map[string][]rule.Rule)}
	for _, r := range sorted {
		if r.ToolName == "" || strings.Contains(r.ToolName, "*") {
			idx.general = append(idx.general, r)
		} else {
			idx.exact[r.ToolName] = append(idx.exact[r.ToolName], r)
		}
	}
	return &ruleSnapshot{rules: sorted, index: idx}
}

// candidateRules merges the exact-name bucket for the canonical name with the
// general bucket, preserving priority order. On equal priority the exact rule
// comes first, so the more specific rule wins ties across buckets.
func candidateRules(idx *ruleIndex, canonical string) []rule.Rule {
	exact := idx.exact[canonical]
	if len(exact) == 0 {
		return idx.general
	}
	if len(idx.general) == 0 {
		return exact
	}

	merged := make([]rule.Rule, 0, len(exact)+len(idx.general))
	i, j := 0, 0
	for i < len(exact) && j < len(idx.general) {
		if exact[i].Priority >= idx.general[j].Priority {
			merged = append(merged, exact[i])
			i++
		} else {
			merged = append(merged, idx.general[j])
			j++
		}
	}
	merged = append(merged, exact[i:]...)
	merged = append(merged, idx.general[j:]...)
	return merged
}

// Mode returns the engine's current operating mode.
func (e *Engine) Mode() string {
	return e.mode
}

// Check decides the given tool call in the engine's operating mode.
func (e *Engine) Check(call rule.ToolCall) rule.Decision {
	return e.CheckInMode(call, e.mode)
}

// CheckInMode decides the given tool call in an explicit operating mode.
// It never fails: when no rule matches, the fail-closed default is ask_user.
// The matching path is lock-free over the active snapshot and safe for
// concurrent callers.
func (e *Engine) CheckInMode(call rule.ToolCall, mode string) rule.Decision {
	key := cacheKey(call, mode)
	if d, ok := e.cache.get(key); ok {
		if e.metrics != nil {
			e.metrics.CacheHitsTotal.Inc()
		}
		return d
	}
	if e.metrics != nil {
		e.metrics.CacheMissesTotal.Inc()
	}

	snap := e.snapshot.Load().(*ruleSnapshot)
	canonical := call.CanonicalName()

	// Candidates are priority-ordered, so the first match is the winner.
	for _, r := range candidateRules(snap.index, canonical) {
		if !r.AppliesInMode(mode) {
			continue
		}
		if !r.Matches(call) {
			continue
		}
		d := rule.Decision{
			Action:      r.Action,
			Source:      r.Source,
			DenyMessage: r.DenyMessage,
			Reason:      fmt.Sprintf("matched rule for %q", displayName(r.ToolName)),
		}
		e.finish(key, d)
		return d
	}

	d := rule.Decision{
		Action: rule.ActionAskUser,
		Source: "default",
		Reason: "no matching rule",
	}
	e.finish(key, d)
	return d
}

func displayName(toolName string) string {
	if toolName == "" {
		return "*"
	}
	return toolName
}

func (e *Engine) finish(key uint64, d rule.Decision) {
	e.cache.put(key, d)
	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
	}
}

// AddRule injects a single rule into the live set without reloading from
// disk. Injected rules share the priority space with file-loaded rules, so a
// higher-priority catch-all still outranks them.
func (e *Engine) AddRule(r rule.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.snapshot.Load().(*ruleSnapshot)
	rules := append(append([]rule.Rule(nil), current.rules...), r)
	snap := buildSnapshot(rules)
	e.snapshot.Store(snap)
	e.cache.clear()
	e.publishGauges(snap)

	e.logger.Debug("rule injected",
		"tool", displayName(r.ToolName),
		"action", string(r.Action),
		"priority", r.Priority,
		"source", r.Source,
	)
}

// Reload discards the active rule set wholesale and publishes the given one.
// Concurrent Check calls observe either the old or the new set in full.
func (e *Engine) Reload(rules []rule.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := buildSnapshot(rules)
	e.snapshot.Store(snap)
	e.cache.clear()
	gen := e.generation.Add(1)
	e.publishGauges(snap)

	e.logger.Info("rule set reloaded",
		"generation", gen,
		"rules", len(snap.rules),
		"cache_cleared", true,
	)
}

// Generation returns how many times the rule set has been reloaded.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// Rules returns a copy of the active rule set, sorted by priority descending.
func (e *Engine) Rules() []rule.Rule {
	snap := e.snapshot.Load().(*ruleSnapshot)
	return append([]rule.Rule(nil), snap.rules...)
}

// Checkers returns the loaded safety checkers, sorted by priority descending.
func (e *Engine) Checkers() []rule.SafetyChecker {
	return append([]rule.SafetyChecker(nil), e.checkers...)
}

func (e *Engine) publishGauges(snap *ruleSnapshot) {
	if e.metrics != nil {
		e.metrics.RulesLoaded.Set(float64(len(snap.rules)))
	}
}

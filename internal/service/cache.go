package service

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// lruEntry is a doubly-linked list node for the decision cache.
type lruEntry struct {
	key      uint64
	decision rule.Decision
	prev     *lruEntry
	next     *lruEntry
}

// decisionCache is a bounded LRU cache for check results. Thread-safe with a
// mutex (both get and put mutate LRU order). Cleared wholesale whenever the
// rule set changes.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry
	tail    *lruEntry
	maxSize int
}

func newDecisionCache(maxSize int) *decisionCache {
	return &decisionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// get retrieves a cached decision, promoting the entry to most recently used.
func (c *decisionCache) get(key uint64) (rule.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.decision, true
	}
	return rule.Decision{}, false
}

// put stores a decision, evicting the least recently used entry at capacity.
func (c *decisionCache) put(key uint64, decision rule.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = decision
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, decision: decision}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// clear empties the cache. Called on AddRule and Reload.
func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

func (c *decisionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *decisionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *decisionCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *decisionCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *decisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// cacheKey hashes everything the decision depends on: canonical name, mode,
// serialized arguments, and the call's annotation flags in sorted order.
func cacheKey(call rule.ToolCall, mode string) uint64 {
	h := xxhash.New()

	_, _ = h.WriteString(call.CanonicalName())
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(mode)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(call.ArgsJSON())
	_, _ = h.Write([]byte{0})

	if len(call.Annotations) > 0 {
		flags := make([]string, 0, len(call.Annotations))
		for k := range call.Annotations {
			flags = append(flags, k)
		}
		sort.Strings(flags)
		for _, k := range flags {
			_, _ = h.WriteString(k)
			_, _ = h.WriteString("=" + strconv.FormatBool(call.Annotations[k]))
			_, _ = h.Write([]byte{0})
		}
	}

	return h.Sum64()
}

package state

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *BaselineStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBaselineStore(filepath.Join(t.TempDir(), "baselines.json"), logger)
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	if m := s.Load(); len(m) != 0 {
		t.Errorf("Load of missing file = %v, want empty map", m)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m := s.Load(); len(m) != 0 {
		t.Errorf("Load of malformed file = %v, want empty map", m)
	}
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("policy:user", "abc123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get("policy:user")
	if !ok || got != "abc123" {
		t.Errorf("Get = %q, %v; want abc123, true", got, ok)
	}
	if _, ok := s.Get("policy:other"); ok {
		t.Error("Get of unset key should report absence")
	}
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("policy:user", "old"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("policy:user", "new"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := s.Get("policy:user"); got != "new" {
		t.Errorf("Get = %q, want new", got)
	}
}

func TestSetPersistsValidJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("policy:user", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("persisted file is not valid JSON: %v", err)
	}
	if m["policy:user"] != "abc" {
		t.Errorf("persisted map = %v", m)
	}
}

func TestSetFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not meaningful on windows")
	}
	s := newTestStore(t)
	if err := s.Set("policy:user", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %04o, want 0600", perm)
	}
}

// Concurrent accepts for different keys must all survive the
// read-modify-write cycle.
func TestConcurrentSets(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("policy:dir%d", n)
			if err := s.Set(key, fmt.Sprintf("hash%d", n)); err != nil {
				t.Errorf("Set %s: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	m := s.Load()
	if len(m) != 10 {
		t.Fatalf("got %d baselines, want 10: %v", len(m), m)
	}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("policy:dir%d", i)
		if m[key] != fmt.Sprintf("hash%d", i) {
			t.Errorf("%s = %q", key, m[key])
		}
	}
}

// A malformed file is survivable: the next Set rewrites it from scratch.
func TestSetRecoversFromMalformedFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("garbage"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Set("policy:user", "abc"); err != nil {
		t.Fatalf("Set over malformed file: %v", err)
	}
	if got, ok := s.Get("policy:user"); !ok || got != "abc" {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

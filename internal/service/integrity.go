package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/state"
	"github.com/Tool-Gate/toolgate/internal/metrics"
)

// IntegrityStatus is the outcome of comparing a directory against its
// accepted baseline.
type IntegrityStatus string

const (
	// IntegrityMatch means the directory hash equals the accepted baseline.
	IntegrityMatch IntegrityStatus = "match"
	// IntegrityMismatch means the directory changed since it was accepted.
	IntegrityMismatch IntegrityStatus = "mismatch"
	// IntegrityNew means no baseline has ever been accepted for this key.
	IntegrityNew IntegrityStatus = "new"
)

// IntegrityResult reports one integrity check.
type IntegrityResult struct {
	Status    IntegrityStatus
	Hash      string
	FileCount int
}

// IntegrityManager detects unreviewed modification of policy directories. It
// is a pure trust gate: it never blocks the decision engine, but callers are
// expected to check a directory before trusting it as a rule source. A
// baseline is created or updated only by an explicit Accept, never by Check.
type IntegrityManager struct {
	store   *state.BaselineStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIntegrityManager creates an IntegrityManager backed by the given store.
func NewIntegrityManager(store *state.BaselineStore, logger *slog.Logger) *IntegrityManager {
	return &IntegrityManager{store: store, logger: logger}
}

// WithIntegrityMetrics attaches Prometheus metrics to the manager.
func (m *IntegrityManager) WithIntegrityMetrics(mx *metrics.Metrics) *IntegrityManager {
	m.metrics = mx
	return m
}

// baselineKey joins scope and identifier into the store key.
func baselineKey(scope, identifier string) string {
	return scope + ":" + identifier
}

// Check hashes the directory and compares it against the stored baseline for
// "scope:identifier". It is read-only with respect to the baseline store.
func (m *IntegrityManager) Check(scope, identifier, dir string) (IntegrityResult, error) {
	hash, count, err := HashDirectory(dir)
	if err != nil {
		return IntegrityResult{}, fmt.Errorf("hash directory %s: %w", dir, err)
	}

	res := IntegrityResult{Hash: hash, FileCount: count}
	stored, ok := m.store.Get(baselineKey(scope, identifier))
	switch {
	case !ok:
		res.Status = IntegrityNew
	case stored == hash:
		res.Status = IntegrityMatch
	default:
		res.Status = IntegrityMismatch
	}

	if m.metrics != nil {
		m.metrics.IntegrityChecksTotal.WithLabelValues(string(res.Status)).Inc()
	}
	m.logger.Debug("integrity check",
		"scope", scope,
		"identifier", identifier,
		"status", string(res.Status),
		"files", count,
	)
	return res, nil
}

// Accept persists the given hash as the new baseline for "scope:identifier",
// overwriting any previous one. A write failure propagates: silently losing
// an accepted baseline is a security regression.
func (m *IntegrityManager) Accept(scope, identifier, hash string) error {
	if err := m.store.Set(baselineKey(scope, identifier), hash); err != nil {
		return fmt.Errorf("persist baseline %s:%s: %w", scope, identifier, err)
	}
	m.logger.Info("integrity baseline accepted", "scope", scope, "identifier", identifier)
	return nil
}

// HashDirectory computes the SHA-256 digest of a directory's file set:
// files are enumerated recursively, sorted by slash-separated relative path,
// and each contributes (path, NUL, content, NUL) to the digest. Sorting makes
// the hash independent of enumeration order while staying sensitive to
// renames and content changes.
func HashDirectory(dir string) (string, int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", 0, fmt.Errorf("read %s: %w", rel, err)
		}
		_, _ = h.Write([]byte(rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(content)
		_, _ = h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), len(paths), nil
}

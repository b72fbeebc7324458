// Package state persists the engine's only mutable on-disk state: the
// integrity baselines accepted for policy directories.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
)

// BaselineStore manages the baselines.json file, a single JSON object mapping
// "scope:identifier" keys to lowercase-hex SHA-256 digests. Reads never fail
// outward: a missing or malformed file degrades to an empty map. Writes are
// atomic (write-tmp-then-rename) and serialized with an in-process mutex plus
// a cross-process flock, so concurrent accepts for different keys cannot lose
// updates.
type BaselineStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewBaselineStore creates a BaselineStore for the given file path.
func NewBaselineStore(path string, logger *slog.Logger) *BaselineStore {
	return &BaselineStore{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the baseline file. A missing file yields an empty
// map; so does malformed content, which downgrades every stored baseline to
// "never accepted" rather than blocking the caller.
func (s *BaselineStore) Load() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read baseline file, treating as empty", "path", s.path, "error", err)
		}
		return map[string]string{}
	}

	// Warn if the file is readable by group or other.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("baseline file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var baselines map[string]string
	if err := json.Unmarshal(data, &baselines); err != nil {
		s.logger.Warn("baseline file is malformed, treating as empty", "path", s.path, "error", err)
		return map[string]string{}
	}
	if baselines == nil {
		return map[string]string{}
	}
	return baselines
}

// Get returns the stored digest for a key, if one exists.
func (s *BaselineStore) Get(key string) (string, bool) {
	h, ok := s.Load()[key]
	return h, ok
}

// Set records a digest for a key and persists the whole map. The
// read-modify-write sequence runs under both locks; a failed write
// propagates, since silently losing an accepted baseline would defeat
// tamper detection.
func (s *BaselineStore) Set(key, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	baselines := s.Load()
	baselines[key] = digest

	data, err := json.MarshalIndent(baselines, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baselines: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on baseline file", "error", err)
	}

	s.logger.Debug("baseline saved", "path", s.path, "key", key)
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over the
// target path. On any error the temp file is cleaned up.
func (s *BaselineStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to baselines: %w", err)
	}
	return nil
}

// Path returns the configured file path.
func (s *BaselineStore) Path() string {
	return s.path
}

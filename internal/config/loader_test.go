package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// writeConfigFile marshals the given document to a toolgate.yaml in a temp
// dir and returns its path.
func writeConfigFile(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// resetViper isolates tests from the process-global viper state.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigFromFile(t *testing.T) {
	resetViper(t)
	base := t.TempDir()
	path := writeConfigFile(t, map[string]any{
		"mode":      "restricted",
		"log_level": "debug",
		"policy": map[string]any{
			"default_dirs": []string{filepath.Join(base, "defaults")},
			"user_dirs":    []string{filepath.Join(base, "user")},
		},
		"integrity": map[string]any{
			"baseline_path": filepath.Join(base, "baselines.json"),
			"enforce":       true,
		},
		"audit": map[string]any{
			"db": filepath.Join(base, "audit.db"),
		},
	})

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Mode != "restricted" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %q/%q", cfg.Mode, cfg.LogLevel)
	}
	if !cfg.Integrity.Enforce {
		t.Error("integrity.enforce should be true")
	}
	if cfg.Audit.DB == "" {
		t.Error("audit.db should be set")
	}

	dirs := cfg.Policy.Dirs()
	if len(dirs) != 2 || dirs[0] != filepath.Join(base, "defaults") {
		t.Errorf("Dirs() = %v, want lowest tier first", dirs)
	}
	if got := cfg.Policy.TierOf(filepath.Join(base, "user")); got != rule.TierUser {
		t.Errorf("TierOf(user dir) = %v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	// Point at a nonexistent file name in an empty dir, so nothing is found.
	viper.SetConfigName("toolgate")
	viper.SetConfigType("yaml")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig without a file: %v", err)
	}
	if cfg.Mode != "default" {
		t.Errorf("Mode = %q, want default", cfg.Mode)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestEnvOverride(t *testing.T) {
	resetViper(t)
	path := writeConfigFile(t, map[string]any{"mode": "default"})
	t.Setenv("TOOLGATE_MODE", "restricted")

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != "restricted" {
		t.Errorf("Mode = %q, want env override to win", cfg.Mode)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{
			"bad log level",
			map[string]any{"mode": "default", "log_level": "loud"},
		},
		{
			"relative baseline path",
			map[string]any{
				"mode":      "default",
				"integrity": map[string]any{"baseline_path": "relative/baselines.json"},
			},
		},
		{
			"relative audit db",
			map[string]any{
				"mode":  "default",
				"audit": map[string]any{"db": "audit.db"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			InitViper(writeConfigFile(t, tt.doc))
			if _, err := LoadConfig(); err == nil {
				t.Error("LoadConfig should reject invalid config")
			}
		})
	}
}

func TestDistinctTierDirs(t *testing.T) {
	shared := filepath.Join(os.TempDir(), "shared-policies")
	cfg := &Config{
		Mode: "default",
		Policy: PolicyConfig{
			UserDirs:  []string{shared},
			AdminDirs: []string{shared},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("a directory listed under two tiers should be rejected")
	}
}

func TestTierOfUnknownDirectory(t *testing.T) {
	var p PolicyConfig
	if got := p.TierOf("/nowhere"); got != rule.TierWorkspace {
		t.Errorf("TierOf unknown dir = %v, want workspace tier", got)
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	dir := t.TempDir()
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("empty dir: found %q", got)
	}

	path := filepath.Join(dir, "toolgate.yml")
	if err := os.WriteFile(path, []byte("mode: default\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := findConfigFileInPaths([]string{dir}); got != path {
		t.Errorf("found %q, want %q", got, path)
	}
}

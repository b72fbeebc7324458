// Package config provides configuration loading for toolgate.
package config

import (
	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// Config is the toolgate application configuration, loaded from
// toolgate.yaml plus TOOLGATE_* environment overrides.
type Config struct {
	// Mode is the operating mode the engine starts in.
	Mode string `mapstructure:"mode" validate:"required"`
	// LogLevel controls slog verbosity.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Policy    PolicyConfig    `mapstructure:"policy"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// PolicyConfig lists the rule directories per trust tier.
type PolicyConfig struct {
	DefaultDirs   []string `mapstructure:"default_dirs"`
	ExtensionDirs []string `mapstructure:"extension_dirs"`
	WorkspaceDirs []string `mapstructure:"workspace_dirs"`
	UserDirs      []string `mapstructure:"user_dirs"`
	AdminDirs     []string `mapstructure:"admin_dirs"`
}

// IntegrityConfig configures the tamper-detection baseline store.
type IntegrityConfig struct {
	// BaselinePath is where accepted directory hashes are persisted.
	BaselinePath string `mapstructure:"baseline_path" validate:"omitempty,abs_path"`
	// Enforce refuses to load a directory whose integrity check mismatches;
	// when false, a mismatch only warns.
	Enforce bool `mapstructure:"enforce"`
}

// AuditConfig configures the decision audit trail.
type AuditConfig struct {
	// DB is the SQLite decision-log path; empty disables auditing.
	DB string `mapstructure:"db" validate:"omitempty,abs_path"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "default"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Dirs returns every configured policy directory, lowest tier first.
func (p PolicyConfig) Dirs() []string {
	var dirs []string
	dirs = append(dirs, p.DefaultDirs...)
	dirs = append(dirs, p.ExtensionDirs...)
	dirs = append(dirs, p.WorkspaceDirs...)
	dirs = append(dirs, p.UserDirs...)
	dirs = append(dirs, p.AdminDirs...)
	return dirs
}

// TierOf maps a configured directory back to its trust tier. Unknown
// directories resolve to the workspace tier.
func (p PolicyConfig) TierOf(dir string) rule.Tier {
	for _, d := range p.AdminDirs {
		if d == dir {
			return rule.TierAdmin
		}
	}
	for _, d := range p.UserDirs {
		if d == dir {
			return rule.TierUser
		}
	}
	for _, d := range p.WorkspaceDirs {
		if d == dir {
			return rule.TierWorkspace
		}
	}
	for _, d := range p.ExtensionDirs {
		if d == dir {
			return rule.TierExtension
		}
	}
	for _, d := range p.DefaultDirs {
		if d == dir {
			return rule.TierDefault
		}
	}
	return rule.TierWorkspace
}

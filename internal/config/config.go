// Package config holds the user-controlled update policy. The engine
// never caches a Config across a session boundary: it asks a Provider
// each time so settings edits take effect on the next session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional policy file under the updater home.
const ConfigFileName = "update_config.yaml"

// EnvHome overrides the updater home directory.
const EnvHome = "HELIUM_UPDATER_HOME"

// Config is the update policy. Owned by the host application; read-only
// to the engine.
type Config struct {
	AutoCheck          bool          `yaml:"auto_check"`
	AutoDownload       bool          `yaml:"auto_download"`
	AutoInstall        bool          `yaml:"auto_install"`
	NotifyUser         bool          `yaml:"notify_user"`
	IncludePrereleases bool          `yaml:"include_prereleases"`
	CheckInterval      time.Duration `yaml:"-"`
	MaxRetries         int           `yaml:"max_retries"`
	Timeout            time.Duration `yaml:"-"`
	VerifyChecksums    bool          `yaml:"verify_checksums"`
	VerifySignatures   bool          `yaml:"verify_signatures"`

	// Catalog coordinates, normally seeded from the version manifest.
	RepoOwner string `yaml:"repo_owner"`
	RepoName  string `yaml:"repo_name"`

	HomeDir string `yaml:"-"`
}

// Provider returns the current committed configuration. The coordinator
// calls it at every session boundary and decision gate.
type Provider func() Config

// Defaults returns the documented default policy.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		AutoCheck:          true,
		AutoDownload:       false,
		AutoInstall:        false,
		NotifyUser:         true,
		IncludePrereleases: false,
		CheckInterval:      24 * time.Hour,
		MaxRetries:         3,
		Timeout:            30 * time.Second,
		VerifyChecksums:    true,
		VerifySignatures:   false,
		HomeDir:            filepath.Join(home, ".helium"),
	}
}

// fileConfig mirrors the YAML file. Pointers distinguish "absent" from
// "explicitly false"; unknown keys are ignored by the decoder. Durations
// are strings in time.ParseDuration form.
type fileConfig struct {
	AutoCheck          *bool   `yaml:"auto_check"`
	AutoDownload       *bool   `yaml:"auto_download"`
	AutoInstall        *bool   `yaml:"auto_install"`
	NotifyUser         *bool   `yaml:"notify_user"`
	IncludePrereleases *bool   `yaml:"include_prereleases"`
	CheckInterval      *string `yaml:"check_interval"`
	MaxRetries         *int    `yaml:"max_retries"`
	Timeout            *string `yaml:"timeout"`
	VerifyChecksums    *bool   `yaml:"verify_checksums"`
	VerifySignatures   *bool   `yaml:"verify_signatures"`
	RepoOwner          *string `yaml:"repo_owner"`
	RepoName           *string `yaml:"repo_name"`
}

// Load returns the defaults overlaid with <home>/update_config.yaml.
// An empty home falls back to the HELIUM_UPDATER_HOME environment
// variable, then to the default home. A missing file is not an error.
// On a malformed file the defaults are returned together with the error
// so callers can log and continue.
func Load(home string) (Config, error) {
	cfg := Defaults()
	if home == "" {
		home = os.Getenv(EnvHome)
	}
	if home != "" {
		cfg.HomeDir = home
	}

	path := filepath.Join(cfg.HomeDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	if err := cfg.apply(fc); err != nil {
		return cfg, fmt.Errorf("%s: %w", ConfigFileName, err)
	}
	return cfg, nil
}

func (c *Config) apply(fc fileConfig) error {
	if fc.AutoCheck != nil {
		c.AutoCheck = *fc.AutoCheck
	}
	if fc.AutoDownload != nil {
		c.AutoDownload = *fc.AutoDownload
	}
	if fc.AutoInstall != nil {
		c.AutoInstall = *fc.AutoInstall
	}
	if fc.NotifyUser != nil {
		c.NotifyUser = *fc.NotifyUser
	}
	if fc.IncludePrereleases != nil {
		c.IncludePrereleases = *fc.IncludePrereleases
	}
	if fc.MaxRetries != nil && *fc.MaxRetries >= 0 {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.VerifyChecksums != nil {
		c.VerifyChecksums = *fc.VerifyChecksums
	}
	if fc.VerifySignatures != nil {
		c.VerifySignatures = *fc.VerifySignatures
	}
	if fc.RepoOwner != nil {
		c.RepoOwner = *fc.RepoOwner
	}
	if fc.RepoName != nil {
		c.RepoName = *fc.RepoName
	}
	if fc.CheckInterval != nil {
		d, err := time.ParseDuration(*fc.CheckInterval)
		if err != nil {
			return fmt.Errorf("check_interval: %w", err)
		}
		if d > 0 {
			c.CheckInterval = d
		}
	}
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d > 0 {
			c.Timeout = d
		}
	}
	return nil
}

// FileProvider returns a Provider that re-reads the policy file on every
// call, so the engine always observes the latest committed values.
func FileProvider(home string) Provider {
	return func() Config {
		cfg, _ := Load(home)
		return cfg
	}
}

// Static returns a Provider that always yields cfg. Used by tests and by
// CLI invocations where flags pin the policy for the whole run.
func Static(cfg Config) Provider {
	return func() Config { return cfg }
}

// Package config loads the project configuration from <root>/nexa/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/nexa/internal/filelock"
	"github.com/rcliao/nexa/internal/ledger"
	"github.com/rcliao/nexa/internal/logging"
	"github.com/rcliao/nexa/internal/state"
)

// FileName is the config file location relative to the project root.
var FileName = filepath.Join("nexa", "config.yaml")

// Config is the project configuration.
type Config struct {
	Ledger LedgerConfig `yaml:"ledger"`
	State  StateConfig  `yaml:"state"`
	Index  IndexConfig  `yaml:"index"`
	Log    LogConfig    `yaml:"log"`

	// Root is the resolved project root; relative paths are joined to it.
	Root string `yaml:"-"`

	lockWait, lockStale, lockPoll time.Duration
}

// LedgerConfig configures the bead ledger and its lock.
type LedgerConfig struct {
	Path               string `yaml:"path"`
	CompactThresholdKB int64  `yaml:"compact_threshold_kb"`
	LockWait           string `yaml:"lock_wait"`
	LockStale          string `yaml:"lock_stale"`
	LockPoll           string `yaml:"lock_poll"`
}

// StateConfig configures the state document.
type StateConfig struct {
	Path             string `yaml:"path"`
	CrossProcessLock bool   `yaml:"cross_process_lock"`
	MaxErrors        int    `yaml:"max_errors"`
}

// IndexConfig configures the SQLite search index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Path:               filepath.Join(".beads", "insights.jsonl"),
			CompactThresholdKB: ledger.DefaultCompactThreshold / 1024,
			LockWait:           filelock.DefaultMaxWait.String(),
			LockStale:          filelock.DefaultStale.String(),
			LockPoll:           filelock.DefaultPoll.String(),
		},
		State: StateConfig{
			Path:      filepath.Join("nexa", "state.json"),
			MaxErrors: state.DefaultMaxErrors,
		},
		Index: IndexConfig{
			Path: filepath.Join(".beads", "index.db"),
		},
		Log: LogConfig{
			Level: logging.DefaultLevel,
		},
	}
}

// ResolveRoot picks the project root: the flag value, then NEXA_ROOT, then
// the working directory.
func ResolveRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = os.Getenv("NEXA_ROOT")
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return abs, nil
}

// Load reads the config file under root over the defaults. A missing file
// is not an error. Environment overrides are applied last.
func Load(root string) (*Config, error) {
	cfg := Default()
	cfg.Root = root

	path := filepath.Join(root, FileName)
	// #nosec G304 -- config path is derived from the project root.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEXA_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("NEXA_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("NEXA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) normalize() error {
	defaults := Default()
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = defaults.Ledger.Path
	}
	if strings.TrimSpace(c.State.Path) == "" {
		c.State.Path = defaults.State.Path
	}
	if strings.TrimSpace(c.Index.Path) == "" {
		c.Index.Path = defaults.Index.Path
	}
	if c.Ledger.CompactThresholdKB <= 0 {
		c.Ledger.CompactThresholdKB = defaults.Ledger.CompactThresholdKB
	}
	if c.State.MaxErrors <= 0 {
		c.State.MaxErrors = defaults.State.MaxErrors
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	var err error
	if c.lockWait, err = parseDuration("ledger.lock_wait", c.Ledger.LockWait, defaults.Ledger.LockWait); err != nil {
		return err
	}
	if c.lockStale, err = parseDuration("ledger.lock_stale", c.Ledger.LockStale, defaults.Ledger.LockStale); err != nil {
		return err
	}
	if c.lockPoll, err = parseDuration("ledger.lock_poll", c.Ledger.LockPoll, defaults.Ledger.LockPoll); err != nil {
		return err
	}

	c.Ledger.Path = c.resolve(c.Ledger.Path)
	c.State.Path = c.resolve(c.State.Path)
	c.Index.Path = c.resolve(c.Index.Path)
	return nil
}

func parseDuration(key, value, fallback string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, value)
	}
	return d, nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// LockOptions returns the file lock tuning shared by the ledger and state.
func (c *Config) LockOptions(log logrus.FieldLogger) filelock.Options {
	return filelock.Options{
		MaxWait: c.lockWait,
		Stale:   c.lockStale,
		Poll:    c.lockPoll,
		Logger:  log,
	}
}

// LedgerOptions returns options for ledger.New.
func (c *Config) LedgerOptions(log logrus.FieldLogger) ledger.Options {
	return ledger.Options{
		CompactThreshold: c.Ledger.CompactThresholdKB * 1024,
		Lock:             c.LockOptions(log),
		Logger:           log,
	}
}

// StateOptions returns options for state.New.
func (c *Config) StateOptions(log logrus.FieldLogger) state.Options {
	return state.Options{
		CrossProcessLock: c.State.CrossProcessLock,
		Lock:             c.LockOptions(log),
		MaxErrors:        c.State.MaxErrors,
		Logger:           log,
	}
}

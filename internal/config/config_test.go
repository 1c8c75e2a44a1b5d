package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	path := filepath.Join(root, FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Path != filepath.Join(root, ".beads", "insights.jsonl") {
		t.Errorf("unexpected ledger path %s", cfg.Ledger.Path)
	}
	if cfg.State.Path != filepath.Join(root, "nexa", "state.json") {
		t.Errorf("unexpected state path %s", cfg.State.Path)
	}
	if cfg.State.CrossProcessLock {
		t.Error("cross-process state lock must default off")
	}

	opts := cfg.LedgerOptions(nil)
	if opts.CompactThreshold != 500*1024 {
		t.Errorf("unexpected threshold %d", opts.CompactThreshold)
	}
	if opts.Lock.MaxWait != 5*time.Second || opts.Lock.Stale != 5*time.Second || opts.Lock.Poll != 100*time.Millisecond {
		t.Errorf("unexpected lock options %+v", opts.Lock)
	}
	if cfg.StateOptions(nil).MaxErrors != 50 {
		t.Error("expected 50 max errors")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
ledger:
  path: data/beads.jsonl
  compact_threshold_kb: 64
  lock_wait: 2s
state:
  path: /tmp/elsewhere/state.json
  cross_process_lock: true
log:
  level: debug
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Path != filepath.Join(root, "data", "beads.jsonl") {
		t.Errorf("relative path not resolved: %s", cfg.Ledger.Path)
	}
	if cfg.State.Path != "/tmp/elsewhere/state.json" {
		t.Errorf("absolute path should be kept: %s", cfg.State.Path)
	}
	if !cfg.State.CrossProcessLock || !cfg.StateOptions(nil).CrossProcessLock {
		t.Error("expected cross-process lock enabled")
	}
	opts := cfg.LedgerOptions(nil)
	if opts.CompactThreshold != 64*1024 || opts.Lock.MaxWait != 2*time.Second {
		t.Errorf("unexpected ledger options %+v", opts)
	}
	if opts.Lock.Stale != 5*time.Second {
		t.Errorf("unset duration should keep default, got %s", opts.Lock.Stale)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unexpected level %s", cfg.Log.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "log:\n  level: info\n")
	t.Setenv("NEXA_LEDGER_PATH", "env/ledger.jsonl")
	t.Setenv("NEXA_LOG_LEVEL", "error")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Path != filepath.Join(root, "env", "ledger.jsonl") {
		t.Errorf("env ledger path not applied: %s", cfg.Ledger.Path)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("env level not applied: %s", cfg.Log.Level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", "ledger:\n  lock_wait: soon\n", "ledger.lock_wait"},
		{"negative duration", "ledger:\n  lock_poll: -1s\n", "ledger.lock_poll"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad yaml", "ledger: [unclosed\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.body)
			_, err := Load(root)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveRoot(dir)
	if err != nil || got != dir {
		t.Fatalf("flag root: got %q %v", got, err)
	}

	t.Setenv("NEXA_ROOT", dir)
	got, err = ResolveRoot("")
	if err != nil || got != dir {
		t.Fatalf("env root: got %q %v", got, err)
	}
}

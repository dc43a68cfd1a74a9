package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path := filepath.Join(dir, "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	cfg.ProjectDir = filepath.Join(dir, "project")
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(dir, "data", "crew.db")
	cfg.DeliberationRounds = 4

	data, _ := json.Marshal(cfg)
	if err := mgr.UpdateFromJSON(string(data)); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	updated := mgr.Get()
	if updated.ProjectDir != cfg.ProjectDir {
		t.Fatalf("expected project dir %s, got %s", cfg.ProjectDir, updated.ProjectDir)
	}
	if updated.DeliberationRounds != 4 {
		t.Fatalf("expected 4 rounds, got %d", updated.DeliberationRounds)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.ConsensusThreshold = 250

	data, _ := json.Marshal(cfg)
	if err := mgr.UpdateFromJSON(string(data)); err == nil {
		t.Fatal("threshold above 100 must be rejected")
	}
	if mgr.Get().ConsensusThreshold == 250 {
		t.Fatal("rejected update leaked into the live config")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		reloaded <- struct{}{}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.ProjectDir = filepath.Join(dir, "changed")
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(dir, "data", "crew.db")

	if err := writeConfigFile(mgr.Path(), cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := *cfg
	bad.Participants = cfg.Participants[:1]
	if err := bad.Validate(); err == nil {
		t.Fatal("single participant must be rejected")
	}

	bad = *cfg
	bad.Participants = append([]ParticipantConfig{}, cfg.Participants...)
	bad.Participants[1].Name = bad.Participants[0].Name
	if err := bad.Validate(); err == nil {
		t.Fatal("duplicate participant names must be rejected")
	}

	bad = *cfg
	bad.OverrideMargin = bad.ConsensusThreshold
	if err := bad.Validate(); err == nil {
		t.Fatal("margin at threshold must be rejected")
	}

	bad = *cfg
	bad.LLMProvider = "mystery"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown provider must be rejected")
	}
}

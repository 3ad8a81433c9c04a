package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  http_address: ":7000"
session:
  idle_timeout: 30s
  heartbeat: 5s
machines:
  - id: m1
    location: lobby
    count: 12
  - id: m2
    count: 0
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.HTTPAddress != ":7000" {
		t.Errorf("HTTPAddress = %q, want :7000", cfg.Server.HTTPAddress)
	}
	if cfg.Server.RPCAddress != ":8081" {
		t.Errorf("RPCAddress = %q, want the default :8081", cfg.Server.RPCAddress)
	}
	if cfg.Session.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v, want 30s", cfg.Session.IdleTimeout)
	}
	if cfg.Session.ReapInterval != 10*time.Second {
		t.Errorf("ReapInterval = %v, want the default 10s", cfg.Session.ReapInterval)
	}
	if cfg.Session.Heartbeat != 5*time.Second {
		t.Errorf("Heartbeat = %v, want 5s", cfg.Session.Heartbeat)
	}
	if len(cfg.Machines) != 2 {
		t.Fatalf("len(Machines) = %d, want 2", len(cfg.Machines))
	}
	if cfg.Machines[0] != (MachineConfig{ID: "m1", Location: "lobby", Count: 12}) {
		t.Errorf("Machines[0] = %+v", cfg.Machines[0])
	}
	if cfg.Machines[1].Count != 0 {
		t.Errorf("Machines[1].Count = %d, want 0", cfg.Machines[1].Count)
	}
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("GUMBALL_SERVER_HTTP_ADDRESS", ":9999")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9999" {
		t.Errorf("HTTPAddress = %q, want the env override :9999", cfg.Server.HTTPAddress)
	}
	if cfg.Server.Namespace != "gumball" {
		t.Errorf("Namespace = %q, want gumball", cfg.Server.Namespace)
	}
	if cfg.Session.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, want 1m", cfg.Session.IdleTimeout)
	}
	if cfg.Session.Heartbeat != 30*time.Second {
		t.Errorf("Heartbeat = %v, want the default 30s", cfg.Session.Heartbeat)
	}
	if len(cfg.Machines) != 0 {
		t.Errorf("Expected no machines without a config file, got %d", len(cfg.Machines))
	}
}

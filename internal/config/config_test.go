package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Node.CommandQueueSize != 1 {
		t.Fatalf("expected command queue size 1, got %d", cfg.Node.CommandQueueSize)
	}
	if cfg.Protocol.MaxFrameSize != 1_000_000 {
		t.Fatalf("expected max frame size 1000000, got %d", cfg.Protocol.MaxFrameSize)
	}
}

func TestLoadFromFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), ConfigFileName))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.DHT.ProtocolPrefix != "/dfs" {
		t.Fatalf("expected default protocol prefix, got %q", cfg.DHT.ProtocolPrefix)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
[node]
commandQueueSize = 4

[protocol]
requestTimeout = "30s"

[dht]
quorum = 2
bootstrapPeers = ["/ip4/127.0.0.1/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Node.CommandQueueSize != 4 {
		t.Fatalf("expected queue size 4, got %d", cfg.Node.CommandQueueSize)
	}
	if cfg.Protocol.RequestTimeout.Duration != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Protocol.RequestTimeout)
	}
	// Unset values keep their defaults
	if cfg.Protocol.ID != "/dfs/1" {
		t.Fatalf("expected default protocol id, got %q", cfg.Protocol.ID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config should be valid: %v", err)
	}
	infos, err := cfg.BootstrapAddrInfos()
	if err != nil || len(infos) != 1 {
		t.Fatalf("expected one bootstrap peer, got %v (%v)", infos, err)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	if _, err := Load([]byte("[node\nlistenAddress =")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge("", -1, 0, 0)
	if cfg.Node.SecretKeySeed != -1 || cfg.Node.ListenAddress != "/ip4/0.0.0.0/tcp/0" {
		t.Fatalf("unset flags should not override: %+v", cfg.Node)
	}

	cfg.Merge("/ip4/127.0.0.1/tcp/4001", 7, 2, 9000)
	if cfg.Node.ListenAddress != "/ip4/127.0.0.1/tcp/4001" {
		t.Fatalf("listen address not merged: %s", cfg.Node.ListenAddress)
	}
	if cfg.Node.SecretKeySeed != 7 {
		t.Fatalf("seed not merged: %d", cfg.Node.SecretKeySeed)
	}
	if cfg.Log.Verbosity != 2 || cfg.Gateway.Port != 9000 {
		t.Fatalf("verbosity/port not merged: %d %d", cfg.Log.Verbosity, cfg.Gateway.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad listen address", func(c *Config) { c.Node.ListenAddress = "not-a-multiaddr" }},
		{"seed out of range", func(c *Config) { c.Node.SecretKeySeed = 256 }},
		{"negative queue", func(c *Config) { c.Node.CommandQueueSize = -1 }},
		{"zero backlog", func(c *Config) { c.Node.EventBacklog = 0 }},
		{"zero frame size", func(c *Config) { c.Protocol.MaxFrameSize = 0 }},
		{"negative timeout", func(c *Config) { c.Protocol.RequestTimeout = Duration{-time.Second} }},
		{"unknown mode", func(c *Config) { c.DHT.Mode = "relay" }},
		{"zero quorum", func(c *Config) { c.DHT.Quorum = 0 }},
		{"bootstrap without peer id", func(c *Config) { c.DHT.BootstrapPeers = []string{"/ip4/127.0.0.1/tcp/4001"} }},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

package config

import "time"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddress:    "/ip4/0.0.0.0/tcp/0",
			SecretKeySeed:    -1,
			CommandQueueSize: 1, // one in-flight command serializes callers
			EventBacklog:     64,
			LowWater:         100,
			HighWater:        400,
		},
		Protocol: ProtocolConfig{
			ID:           "/dfs/1",
			MaxFrameSize: 1_000_000,
		},
		DHT: DHTConfig{
			ProtocolPrefix: "/dfs",
			Mode:           "server",
			Quorum:         1,
			BootstrapPeers: []string{},
		},
		MDNS: MDNSConfig{
			Enabled:     true,
			ServiceName: "dfs",
		},
		Gateway: GatewayConfig{
			Port:      8080,
			PortRange: 100,
			Timeouts: TimeoutConfig{
				Read:       Duration{15 * time.Second},
				Write:      Duration{0}, // lookups may outlive any fixed bound
				Idle:       Duration{60 * time.Second},
				ReadHeader: Duration{5 * time.Second},
			},
			MaxHeaderBytes: 1048576, // 1 MB
		},
		Log: LogConfig{
			Verbosity: 0,
			Format:    "console",
		},
	}
}

package config

import "time"

// Config holds all node configuration
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Protocol ProtocolConfig `toml:"protocol"`
	DHT      DHTConfig      `toml:"dht"`
	MDNS     MDNSConfig     `toml:"mdns"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Log      LogConfig      `toml:"log"`
}

// NodeConfig holds identity, transport and actor settings
type NodeConfig struct {
	ListenAddress    string `toml:"listenAddress"`
	SecretKeySeed    int    `toml:"secretKeySeed"` // -1 means no seed
	KeyFile          string `toml:"keyFile"`
	CommandQueueSize int    `toml:"commandQueueSize"`
	EventBacklog     int    `toml:"eventBacklog"`
	LowWater         int    `toml:"lowWater"`
	HighWater        int    `toml:"highWater"`
	NATTraversal     bool   `toml:"natTraversal"`
}

// ProtocolConfig holds file exchange protocol settings
type ProtocolConfig struct {
	ID             string   `toml:"id"`
	MaxFrameSize   int      `toml:"maxFrameSize"`
	RequestTimeout Duration `toml:"requestTimeout"`
}

// DHTConfig holds Kademlia settings
type DHTConfig struct {
	ProtocolPrefix string   `toml:"protocolPrefix"`
	Mode           string   `toml:"mode"`
	Quorum         int      `toml:"quorum"`
	BootstrapPeers []string `toml:"bootstrapPeers"`
}

// MDNSConfig holds local network discovery settings
type MDNSConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"serviceName"`
}

// GatewayConfig holds HTTP gateway settings
type GatewayConfig struct {
	Port           int           `toml:"port"`
	PortRange      int           `toml:"portRange"`
	Timeouts       TimeoutConfig `toml:"timeouts"`
	MaxHeaderBytes int           `toml:"maxHeaderBytes"`
	CheckOrigin    bool          `toml:"checkOrigin"`
}

// TimeoutConfig holds timeout settings
type TimeoutConfig struct {
	Read       Duration `toml:"read"`
	Write      Duration `toml:"write"`
	Idle       Duration `toml:"idle"`
	ReadHeader Duration `toml:"readHeader"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Format    string `toml:"format"` // "console" or "json"
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

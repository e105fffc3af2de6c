package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

const ConfigFileName = "dfs.toml"

// LoadFromFile loads configuration from a TOML file
// Returns default config if path is empty or the file doesn't exist
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load parses TOML content on top of the defaults
func Load(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Merge merges command-line flags into configuration
// Flags take precedence over config file values
func (c *Config) Merge(listenAddress string, secretKeySeed int, verbosity int, gatewayPort int) {
	// Only override if flag was explicitly set
	if listenAddress != "" {
		c.Node.ListenAddress = listenAddress
	}

	if secretKeySeed >= 0 {
		c.Node.SecretKeySeed = secretKeySeed
	}

	if verbosity > 0 {
		c.Log.Verbosity = verbosity
	}

	if gatewayPort != 0 {
		c.Gateway.Port = gatewayPort
	}
}

// Validate checks if configuration values are valid
func (c *Config) Validate() error {
	if _, err := multiaddr.NewMultiaddr(c.Node.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Node.ListenAddress, err)
	}

	if c.Node.SecretKeySeed < -1 || c.Node.SecretKeySeed > 255 {
		return fmt.Errorf("invalid secret key seed: %d (must be 0-255)", c.Node.SecretKeySeed)
	}

	// Zero is an unbuffered queue: every caller waits for the actor to take its command
	if c.Node.CommandQueueSize < 0 {
		return fmt.Errorf("invalid command queue size: %d (must be >= 0)", c.Node.CommandQueueSize)
	}

	if c.Node.EventBacklog < 1 {
		return fmt.Errorf("invalid event backlog: %d (must be >= 1)", c.Node.EventBacklog)
	}

	if c.Node.LowWater < 0 || c.Node.HighWater < c.Node.LowWater {
		return fmt.Errorf("invalid connection watermarks: low %d, high %d", c.Node.LowWater, c.Node.HighWater)
	}

	if c.Protocol.ID == "" {
		return fmt.Errorf("protocol id cannot be empty")
	}

	if c.Protocol.MaxFrameSize < 1 {
		return fmt.Errorf("invalid max frame size: %d (must be >= 1)", c.Protocol.MaxFrameSize)
	}

	if c.Protocol.RequestTimeout.Duration < 0 {
		return fmt.Errorf("invalid request timeout: %v (must not be negative)", c.Protocol.RequestTimeout)
	}

	switch c.DHT.Mode {
	case "server", "client", "auto":
	default:
		return fmt.Errorf("invalid DHT mode %q (must be server, client or auto)", c.DHT.Mode)
	}

	if c.DHT.Quorum < 1 {
		return fmt.Errorf("invalid quorum: %d (must be >= 1)", c.DHT.Quorum)
	}

	if _, err := c.BootstrapAddrInfos(); err != nil {
		return err
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", c.Gateway.Port)
	}

	if c.Gateway.PortRange < 1 {
		return fmt.Errorf("invalid port range: %d (must be >= 1)", c.Gateway.PortRange)
	}

	if c.Gateway.Timeouts.Read.Duration < 0 {
		return fmt.Errorf("invalid read timeout: %v (must be positive)", c.Gateway.Timeouts.Read)
	}
	if c.Gateway.Timeouts.Write.Duration < 0 {
		return fmt.Errorf("invalid write timeout: %v (must be positive)", c.Gateway.Timeouts.Write)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be console or json)", c.Log.Format)
	}

	return nil
}

// BootstrapAddrInfos parses the configured bootstrap peers
func (c *Config) BootstrapAddrInfos() ([]peer.AddrInfo, error) {
	infos := make([]peer.AddrInfo, 0, len(c.DHT.BootstrapPeers))
	for _, s := range c.DHT.BootstrapPeers {
		info, err := peer.AddrInfoFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bootstrap peer %q: %w", s, err)
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

package logging

import (
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the -v count: 0 logs at info, 1 adds debug and
// callers, 2 and above add stack traces on warnings.
func New(verbosity int, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbosity >= 1 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableCaller = verbosity < 1
	cfg.DisableStacktrace = verbosity < 2

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Aliases hands out short readable names for peers (peer-a, peer-b, ...)
type Aliases struct {
	mu      sync.Mutex
	names   map[peer.ID]string
	counter int
}

// NewAliases creates an empty alias table
func NewAliases() *Aliases {
	return &Aliases{names: make(map[peer.ID]string)}
}

// Alias returns the alias for a peer, creating one if it doesn't exist
func (a *Aliases) Alias(id peer.ID) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if alias, exists := a.names[id]; exists {
		return alias
	}

	var alias string
	if a.counter < 26 {
		alias = fmt.Sprintf("peer-%c", rune('a'+a.counter))
	} else {
		alias = fmt.Sprintf("peer-%d", a.counter+1)
	}
	a.names[id] = alias
	a.counter++

	return alias
}

// Field is a zap field naming the peer by alias and ID
func (a *Aliases) Field(id peer.ID) zap.Field {
	return zap.String("peer", a.Alias(id)+"/"+id.String())
}

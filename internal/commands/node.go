package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/config"
	"github.com/zhubby/p2p-rs/internal/logging"
	"github.com/zhubby/p2p-rs/internal/node"
	"github.com/zhubby/p2p-rs/internal/pidfile"
	"go.uber.org/zap"
)

// GlobalOptions holds the persistent flags shared by every node command
type GlobalOptions struct {
	ConfigPath    string
	SecretKeySeed int
	Peer          string
	ListenAddress string
	Verbosity     int
}

// Global is bound to the root command's persistent flags
var Global = GlobalOptions{SecretKeySeed: -1}

var errNoPeerID = errors.New("expect peer multiaddr to contain peer ID")

// loadConfig reads the config file and applies flag overrides
func loadConfig(gatewayPort int) (*config.Config, error) {
	path := Global.ConfigPath
	if path == "" {
		path = config.ConfigFileName
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Merge(Global.ListenAddress, Global.SecretKeySeed, Global.Verbosity, gatewayPort)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// startNode builds and starts a node, listens on the configured address and
// dials --peer when given
func startNode(ctx context.Context, cfg *config.Config) (*node.Node, *zap.Logger, error) {
	log, err := logging.New(cfg.Log.Verbosity, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}

	n, err := node.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		n.Close()
		return nil, nil, fmt.Errorf("failed to start node: %w", err)
	}

	listen, err := multiaddr.NewMultiaddr(cfg.Node.ListenAddress)
	if err != nil {
		n.Close()
		return nil, nil, fmt.Errorf("invalid listen address: %w", err)
	}
	if err := n.Client().StartListening(ctx, listen); err != nil {
		n.Close()
		return nil, nil, fmt.Errorf("failed to listen: %w", err)
	}

	if Global.Peer != "" {
		if err := dialAddr(ctx, n, Global.Peer); err != nil {
			n.Close()
			return nil, nil, err
		}
	}

	fmt.Printf("Peer ID: %s\n", n.ID())
	return n, log, nil
}

// parsePeerAddr splits a /.../p2p/<id> multiaddr into its peer and transport parts
func parsePeerAddr(s string) (peer.ID, multiaddr.Multiaddr, error) {
	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return "", nil, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	transport, id := peer.SplitAddr(addr)
	if id == "" {
		return "", nil, errNoPeerID
	}
	return id, transport, nil
}

func dialAddr(ctx context.Context, n *node.Node, s string) error {
	id, addr, err := parsePeerAddr(s)
	if err != nil {
		return err
	}
	if err := n.Client().Dial(ctx, id, addr); err != nil {
		return fmt.Errorf("failed to dial %s: %w", s, err)
	}
	return nil
}

// dialableAddrs returns the node's listen addresses with its peer ID appended
func dialableAddrs(n *node.Node) []string {
	addrs := n.Host().Addrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.ID()))
	}
	return out
}

// register records this process in the node registry and returns the cleanup
func register(n *node.Node, mode, key string, log *zap.Logger) func() {
	err := pidfile.Register(pidfile.Entry{
		PeerID: n.ID().String(),
		Mode:   mode,
		Key:    key,
		Addrs:  dialableAddrs(n),
	})
	if err != nil {
		log.Warn("Failed to register process", zap.Error(err))
		return func() {}
	}
	return func() {
		if err := pidfile.Unregister(); err != nil {
			log.Warn("Failed to unregister process", zap.Error(err))
		}
	}
}

// dropInbound refuses every inbound file request until the node stops
func dropInbound(n *node.Node) {
	go func() {
		for {
			select {
			case req := <-n.Events():
				req.Channel.Drop()
			case <-n.Done():
				return
			}
		}
	}()
}

// signalContext is canceled on interrupt or termination
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

package node

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/config"
	"github.com/zhubby/p2p-rs/internal/discovery"
	"github.com/zhubby/p2p-rs/internal/logging"
	"github.com/zhubby/p2p-rs/internal/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Node owns the libp2p host and the event loop driving it. Applications talk
// to it through Client and receive inbound requests from Events.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config

	host  host.Host
	dht   *discovery.DHT
	files *protocol.Service
	mdns  mdns.Service
	loop  *eventLoop

	commands chan command
	swarm    chan swarmEvent
	events   chan InboundRequest

	started bool
	metrics *Metrics
	aliases *logging.Aliases
	log     *zap.Logger
}

// New builds the host, DHT and file protocol. Nothing listens and no events
// flow until Start is called.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}

	priv, err := identity(cfg.Node.SecretKeySeed, cfg.Node.KeyFile)
	if err != nil {
		return nil, err
	}

	cm, err := connmgr.NewConnManager(cfg.Node.LowWater, cfg.Node.HighWater)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.NoListenAddrs, // listening is an explicit command
		libp2p.ConnectionManager(cm),
	}
	if cfg.Node.NATTraversal {
		opts = append(opts,
			libp2p.EnableRelay(),
			libp2p.NATPortMap(),
			libp2p.EnableNATService(),
			libp2p.EnableHolePunching(),
		)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		host:     h,
		commands: make(chan command, cfg.Node.CommandQueueSize),
		swarm:    make(chan swarmEvent),
		events:   make(chan InboundRequest, 1),
		metrics:  NewMetrics(),
		aliases:  logging.NewAliases(),
		log:      log.With(zap.Stringer("self", h.ID())),
	}

	bootstrap, err := cfg.BootstrapAddrInfos()
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	n.dht, err = discovery.New(ctx, h, discovery.Options{
		ProtocolPrefix: cfg.DHT.ProtocolPrefix,
		Mode:           cfg.DHT.Mode,
		Quorum:         cfg.DHT.Quorum,
		BootstrapPeers: bootstrap,
	}, func(res discovery.QueryResult) {
		n.emit(queryCompleted{result: res})
	}, n.log)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	n.files = protocol.NewService(ctx, h, protocol.Options{
		ID:             cfg.Protocol.ID,
		MaxFrameSize:   cfg.Protocol.MaxFrameSize,
		RequestTimeout: cfg.Protocol.RequestTimeout.Duration,
	}, protocol.Handlers{
		OnRequest: func(req protocol.InboundRequest) {
			n.emit(inboundRequest{req: req})
		},
		OnResponse: func(resp protocol.Response) {
			n.emit(inboundResponse{resp: resp})
		},
	}, n.log)

	// Notifiee callbacks run synchronously inside the swarm, sometimes while
	// the loop itself is calling into it, so they must not block on emit
	h.Network().Notify(&network.NotifyBundle{
		ListenF: func(_ network.Network, addr multiaddr.Multiaddr) {
			go n.emit(listenAddrAdded{addr: addr})
		},
		ConnectedF: func(_ network.Network, c network.Conn) {
			go n.emit(connectionEstablished{peer: c.RemotePeer(), addr: c.RemoteMultiaddr(), direction: c.Stat().Direction})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			go n.emit(connectionClosed{peer: c.RemotePeer()})
		},
	})

	n.loop = newEventLoop(h, n.dht, n.files, n.commands, n.swarm, n.events, n.emit,
		cfg.Node.EventBacklog, n.metrics, n.aliases, n.log)
	return n, nil
}

// Start runs the event loop and begins discovery
func (n *Node) Start() error {
	if n.started {
		return fmt.Errorf("node already started")
	}
	n.started = true

	n.files.Start()
	go n.loop.run(n.ctx)

	bootstrap, err := n.cfg.BootstrapAddrInfos()
	if err != nil {
		return err
	}
	for _, info := range bootstrap {
		go n.emit(peerDiscovered{info: info})
	}

	if n.cfg.MDNS.Enabled {
		svc, err := discovery.StartMDNS(n.host, n.cfg.MDNS.ServiceName, func(info peer.AddrInfo) {
			n.emit(peerDiscovered{info: info})
		})
		if err != nil {
			// Kademlia still works with explicit peers
			n.log.Warn("mDNS unavailable", zap.Error(err))
		} else {
			n.mdns = svc
		}
	}

	go func() {
		if err := n.dht.Bootstrap(n.ctx); err != nil {
			n.log.Debug("DHT bootstrap failed", zap.Error(err))
		}
	}()

	n.log.Info("Node started", zap.Stringer("peerID", n.host.ID()))
	return nil
}

// Close stops the event loop and releases the host
func (n *Node) Close() error {
	n.cancel()
	if n.started {
		<-n.loop.done
	}
	n.files.Stop()

	var errs error
	if n.mdns != nil {
		errs = multierr.Append(errs, n.mdns.Close())
	}
	errs = multierr.Append(errs, n.dht.Close())
	errs = multierr.Append(errs, n.host.Close())
	return errs
}

// emit hands a swarm event to the loop, giving up once the node is closing
func (n *Node) emit(ev swarmEvent) {
	select {
	case n.swarm <- ev:
	case <-n.ctx.Done():
	}
}

// Client returns a handle to the event loop
func (n *Node) Client() Client {
	return Client{commands: n.commands, done: n.loop.done}
}

// Events delivers inbound file requests. Each must be answered with
// Client.RespondFile or dropped.
func (n *Node) Events() <-chan InboundRequest {
	return n.events
}

// Done is closed when the event loop has exited
func (n *Node) Done() <-chan struct{} {
	return n.loop.done
}

// ID returns the local peer ID
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// Host exposes the libp2p host for auxiliary protocols such as ping and pubsub
func (n *Node) Host() host.Host {
	return n.host
}

// ContentRouting returns the DHT for routing-based peer discovery
func (n *Node) ContentRouting() routing.ContentRouting {
	return n.dht.ContentRouting()
}

// Metrics returns the node's collectors
func (n *Node) Metrics() *Metrics {
	return n.metrics
}

// Aliases returns the alias table used in this node's logs
func (n *Node) Aliases() *logging.Aliases {
	return n.aliases
}

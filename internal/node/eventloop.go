package node

import (
	"context"
	"errors"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/discovery"
	"github.com/zhubby/p2p-rs/internal/logging"
	"github.com/zhubby/p2p-rs/internal/protocol"
	"go.uber.org/zap"
)

// queryIssuer is the DHT surface the loop drives
type queryIssuer interface {
	StartProviding(key string) discovery.QueryID
	GetProviders(key string) discovery.QueryID
	PutRecord(key string, value []byte) discovery.QueryID
	GetRecord(key string) discovery.QueryID
	AddAddress(info peer.AddrInfo) bool
	RoutingTableSize() int
}

// requestSender opens outbound file requests
type requestSender interface {
	SendRequest(ctx context.Context, p peer.ID, key string) protocol.RequestID
}

// eventLoop is the only goroutine that touches swarm state or the pending tables
type eventLoop struct {
	host     host.Host
	dht      queryIssuer
	files    requestSender
	commands <-chan command
	swarm    <-chan swarmEvent
	events   chan<- InboundRequest
	emit     func(swarmEvent)

	// inbound requests not yet taken by the application
	backlog    []InboundRequest
	maxBacklog int

	queries  *pendingTable[discovery.QueryID, func(discovery.QueryResult)]
	requests *pendingTable[protocol.RequestID, chan<- result[string]]
	dials    *pendingTable[peer.ID, []chan<- error]

	metrics *Metrics
	aliases *logging.Aliases
	log     *zap.Logger
	done    chan struct{}
}

func newEventLoop(h host.Host, d queryIssuer, files requestSender, commands <-chan command, swarm <-chan swarmEvent,
	events chan<- InboundRequest, emit func(swarmEvent), maxBacklog int, metrics *Metrics, aliases *logging.Aliases, log *zap.Logger) *eventLoop {
	return &eventLoop{
		host:       h,
		dht:        d,
		files:      files,
		commands:   commands,
		swarm:      swarm,
		events:     events,
		emit:       emit,
		maxBacklog: maxBacklog,
		queries:    newPendingTable[discovery.QueryID, func(discovery.QueryResult)](),
		requests:   newPendingTable[protocol.RequestID, chan<- result[string]](),
		dials:      newPendingTable[peer.ID, []chan<- error](),
		metrics:    metrics,
		aliases:    aliases,
		log:        log.Named("loop"),
		done:       make(chan struct{}),
	}
}

// run processes commands and swarm events until ctx is canceled
func (l *eventLoop) run(ctx context.Context) {
	defer close(l.done)
	defer l.shutdown()

	for {
		// Only offer the head of the backlog when there is one
		var out chan<- InboundRequest
		var next InboundRequest
		if len(l.backlog) > 0 {
			out = l.events
			next = l.backlog[0]
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-l.commands:
			l.metrics.commands.WithLabelValues(cmd.name()).Inc()
			l.handleCommand(ctx, cmd)
		case ev := <-l.swarm:
			l.handleSwarmEvent(ctx, ev)
		case out <- next:
			l.backlog[0] = InboundRequest{}
			l.backlog = l.backlog[1:]
		}

		l.metrics.pending.WithLabelValues("queries").Set(float64(l.queries.len()))
		l.metrics.pending.WithLabelValues("requests").Set(float64(l.requests.len()))
		l.metrics.pending.WithLabelValues("dials").Set(float64(l.dials.len()))
		l.metrics.pending.WithLabelValues("events").Set(float64(len(l.backlog)))
	}
}

func (l *eventLoop) shutdown() {
	for _, req := range l.backlog {
		req.Channel.Drop()
	}
	l.backlog = nil
	l.log.Debug("Event loop stopped",
		zap.Int("pendingQueries", l.queries.len()),
		zap.Int("pendingRequests", l.requests.len()),
		zap.Int("pendingDials", l.dials.len()))
}

func (l *eventLoop) handleCommand(ctx context.Context, cmd command) {
	switch cmd := cmd.(type) {
	case *startListeningCmd:
		if err := l.host.Network().Listen(cmd.addr); err != nil {
			cmd.reply <- &TransportError{Op: "listen", Addr: cmd.addr, Err: err}
			return
		}
		cmd.reply <- nil

	case *dialCmd:
		if !l.awaitDial(cmd.peer, cmd.reply) {
			l.log.Debug("Joining dial in flight", l.aliases.Field(cmd.peer))
			return
		}
		info := peer.AddrInfo{ID: cmd.peer}
		if cmd.addr != nil {
			info.Addrs = []multiaddr.Multiaddr{cmd.addr}
		}
		l.log.Debug("Dialing", l.aliases.Field(cmd.peer), zap.Stringer("addr", cmd.addr))
		go func() {
			err := l.host.Connect(ctx, info)
			l.emit(dialCompleted{peer: info.ID, addr: cmd.addr, err: err})
		}()

	case *startProvidingCmd:
		id := l.dht.StartProviding(cmd.key)
		l.trackQuery(id, func(res discovery.QueryResult) {
			if res.Err != nil {
				// The local record stands even when nobody else accepted it
				l.log.Warn("Failed to publish provider record", zap.String("key", res.Key), zap.Error(res.Err))
			}
			cmd.reply <- nil
		})

	case *getProvidersCmd:
		id := l.dht.GetProviders(cmd.key)
		l.trackQuery(id, func(res discovery.QueryResult) {
			cmd.reply <- result[[]peer.ID]{val: res.Providers, err: queryError(res)}
		})

	case *putRecordCmd:
		id := l.dht.PutRecord(cmd.key, cmd.value)
		l.trackQuery(id, func(res discovery.QueryResult) {
			cmd.reply <- queryError(res)
		})

	case *getRecordCmd:
		id := l.dht.GetRecord(cmd.key)
		l.trackQuery(id, func(res discovery.QueryResult) {
			cmd.reply <- result[[]byte]{val: res.Value, err: queryError(res)}
		})

	case *requestFileCmd:
		id := l.files.SendRequest(cmd.ctx, cmd.peer, cmd.key)
		if err := l.requests.insert(id, cmd.reply); err != nil {
			l.log.Error("Request id already outstanding", zap.Uint64("id", uint64(id)))
			cmd.reply <- result[string]{err: err}
		}

	case *respondFileCmd:
		if err := cmd.channel.Respond(cmd.content); err != nil {
			l.log.Warn("Response not delivered", l.aliases.Field(cmd.channel.Peer()), zap.Error(err))
		}

	case *statusCmd:
		cmd.reply <- l.status()

	default:
		l.log.Error("Unknown command", zap.String("command", cmd.name()))
	}
}

// trackQuery registers resolve to run when the query with id terminates
func (l *eventLoop) trackQuery(id discovery.QueryID, resolve func(discovery.QueryResult)) {
	if err := l.queries.insert(id, resolve); err != nil {
		l.log.Error("Query id already outstanding", zap.Uint64("id", uint64(id)))
		resolve(discovery.QueryResult{ID: id, Err: err})
	}
}

func queryError(res discovery.QueryResult) error {
	if res.Err == nil {
		return nil
	}
	return &QueryError{Kind: res.Kind, Key: res.Key, Err: res.Err}
}

func (l *eventLoop) handleSwarmEvent(ctx context.Context, ev swarmEvent) {
	switch ev := ev.(type) {
	case listenAddrAdded:
		l.log.Info("Local node is listening", zap.Stringer("addr", ev.addr), zap.Stringer("peerID", l.host.ID()))

	case connectionEstablished:
		l.log.Debug("Connection established", l.aliases.Field(ev.peer),
			zap.Stringer("addr", ev.addr), zap.Stringer("direction", ev.direction))
		l.metrics.connectedPeers.Set(float64(len(l.host.Network().Peers())))

	case connectionClosed:
		l.log.Debug("Connection closed", l.aliases.Field(ev.peer))
		l.metrics.connectedPeers.Set(float64(len(l.host.Network().Peers())))

	case peerDiscovered:
		l.log.Debug("Discovered peer", l.aliases.Field(ev.info.ID), zap.Int("addrs", len(ev.info.Addrs)))
		l.dht.AddAddress(ev.info)
		go func() {
			// Best effort; the DHT dials on demand if this fails
			_ = l.host.Connect(ctx, ev.info)
		}()

	case queryCompleted:
		resolve, ok := l.queries.take(ev.result.ID)
		if !ok {
			l.log.Warn("Discarding result for unknown query",
				zap.Uint64("id", uint64(ev.result.ID)), zap.Stringer("kind", ev.result.Kind))
			l.metrics.staleEvents.WithLabelValues("query").Inc()
			return
		}
		l.metrics.queries.WithLabelValues(ev.result.Kind.String(), outcome(ev.result.Err)).Inc()
		resolve(ev.result)

	case inboundRequest:
		if len(l.backlog) >= l.maxBacklog {
			l.log.Warn("Event backlog full, dropping request", l.aliases.Field(ev.req.Peer), zap.String("key", ev.req.Key))
			l.metrics.inboundRequests.WithLabelValues("dropped").Inc()
			ev.req.Channel.Drop()
			return
		}
		l.log.Debug("Inbound request", l.aliases.Field(ev.req.Peer), zap.String("key", ev.req.Key))
		l.metrics.inboundRequests.WithLabelValues("queued").Inc()
		l.backlog = append(l.backlog, ev.req)

	case inboundResponse:
		reply, ok := l.requests.take(ev.resp.ID)
		if !ok {
			l.log.Warn("Discarding response for unknown request",
				zap.Uint64("id", uint64(ev.resp.ID)), l.aliases.Field(ev.resp.Peer))
			l.metrics.staleEvents.WithLabelValues("response").Inc()
			return
		}
		l.metrics.fileRequests.WithLabelValues(outcome(ev.resp.Err)).Inc()
		reply <- result[string]{val: ev.resp.Content, err: ev.resp.Err}

	case dialCompleted:
		if ev.err == nil && ev.addr != nil {
			l.dht.AddAddress(peer.AddrInfo{ID: ev.peer, Addrs: []multiaddr.Multiaddr{ev.addr}})
		}
		waiters, ok := l.dials.take(ev.peer)
		if !ok {
			l.log.Warn("Discarding outcome for unknown dial", l.aliases.Field(ev.peer))
			l.metrics.staleEvents.WithLabelValues("dial").Inc()
			return
		}
		var err error
		if ev.err != nil {
			var terr *TransportError
			if !errors.As(ev.err, &terr) {
				terr = &TransportError{Op: "dial", Peer: ev.peer, Addr: ev.addr, Err: ev.err}
			}
			err = terr
		}
		for _, reply := range waiters {
			reply <- err
		}
	}
}

// awaitDial queues reply for the outcome of a dial to p and reports whether
// the caller has to start that dial
func (l *eventLoop) awaitDial(p peer.ID, reply chan<- error) bool {
	waiters, inFlight := l.dials.take(p)
	l.dials.insert(p, append(waiters, reply))
	return !inFlight
}

func (l *eventLoop) status() Status {
	addrs := l.host.Addrs()
	listen := make([]string, 0, len(addrs))
	for _, a := range addrs {
		listen = append(listen, a.String())
	}
	return Status{
		PeerID:           l.host.ID(),
		ListenAddrs:      listen,
		ConnectedPeers:   len(l.host.Network().Peers()),
		RoutingTableSize: l.dht.RoutingTableSize(),
		PendingQueries:   l.queries.len(),
		PendingRequests:  l.requests.len(),
		PendingDials:     l.dials.len(),
		QueuedEvents:     len(l.backlog),
	}
}

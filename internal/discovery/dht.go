package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ipfs/go-cid"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	"go.uber.org/zap"
)

// ErrNotFound is reported by GetRecord when no peer holds the key
var ErrNotFound = errors.New("record not found")

// QueryID identifies a submitted DHT query. IDs are never reused.
type QueryID uint64

// QueryKind is the operation a query performs
type QueryKind int

const (
	QueryGetProviders QueryKind = iota
	QueryStartProviding
	QueryGetRecord
	QueryPutRecord
)

func (k QueryKind) String() string {
	switch k {
	case QueryGetProviders:
		return "get_providers"
	case QueryStartProviding:
		return "start_providing"
	case QueryGetRecord:
		return "get_record"
	case QueryPutRecord:
		return "put_record"
	default:
		return fmt.Sprintf("query(%d)", int(k))
	}
}

// QueryResult is the terminal state of a query
type QueryResult struct {
	ID        QueryID
	Kind      QueryKind
	Key       string
	Providers []peer.ID
	Value     []byte
	Err       error
}

// Router is the subset of the Kademlia DHT that queries run against
type Router interface {
	Provide(ctx context.Context, key cid.Cid, announce bool) error
	FindProvidersAsync(ctx context.Context, key cid.Cid, count int) <-chan peer.AddrInfo
	PutValue(ctx context.Context, key string, value []byte, opts ...routing.Option) error
	GetValue(ctx context.Context, key string, opts ...routing.Option) ([]byte, error)
}

var _ Router = (*dht.IpfsDHT)(nil)

// Options configures the DHT
type Options struct {
	ProtocolPrefix string
	Mode           string // "server", "client" or "auto"
	Quorum         int
	BootstrapPeers []peer.AddrInfo
}

// DHT wraps Kademlia and reports every query through a single callback
type DHT struct {
	ctx      context.Context
	router   Router
	kad      *dht.IpfsDHT
	host     host.Host
	quorum   int
	onResult func(QueryResult)
	nextID   atomic.Uint64
	log      *zap.Logger
}

// New creates a Kademlia DHT on h. Queries run until ctx is canceled.
func New(ctx context.Context, h host.Host, opts Options, onResult func(QueryResult), log *zap.Logger) (*DHT, error) {
	mode, err := parseMode(opts.Mode)
	if err != nil {
		return nil, err
	}

	dhtOpts := []dht.Option{
		dht.Mode(mode),
		dht.Validator(Validator()),
		dht.BootstrapPeers(opts.BootstrapPeers...),
	}
	if opts.ProtocolPrefix != "" {
		dhtOpts = append(dhtOpts, dht.ProtocolPrefix(protocol.ID(opts.ProtocolPrefix)))
	}

	kad, err := dht.New(ctx, h, dhtOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}

	d := NewWithRouter(ctx, kad, opts.Quorum, onResult, log)
	d.kad = kad
	d.host = h
	return d, nil
}

// NewWithRouter wraps an existing router
func NewWithRouter(ctx context.Context, r Router, quorum int, onResult func(QueryResult), log *zap.Logger) *DHT {
	if quorum < 1 {
		quorum = 1
	}
	return &DHT{
		ctx:      ctx,
		router:   r,
		quorum:   quorum,
		onResult: onResult,
		log:      log.Named("dht"),
	}
}

func parseMode(mode string) (dht.ModeOpt, error) {
	switch mode {
	case "", "server":
		return dht.ModeServer, nil
	case "client":
		return dht.ModeClient, nil
	case "auto":
		return dht.ModeAutoServer, nil
	default:
		return 0, fmt.Errorf("unknown DHT mode %q", mode)
	}
}

func (d *DHT) submit(kind QueryKind, key string, run func(ctx context.Context) QueryResult) QueryID {
	id := QueryID(d.nextID.Add(1))
	d.log.Debug("Query started", zap.Uint64("id", uint64(id)), zap.Stringer("kind", kind), zap.String("key", key))
	go func() {
		res := run(d.ctx)
		res.ID, res.Kind, res.Key = id, kind, key
		d.onResult(res)
	}()
	return id
}

// StartProviding stores a local provider record for key and announces it to the closest peers
func (d *DHT) StartProviding(key string) QueryID {
	return d.submit(QueryStartProviding, key, func(ctx context.Context) QueryResult {
		c, err := ContentKey(key)
		if err != nil {
			return QueryResult{Err: err}
		}
		return QueryResult{Err: d.router.Provide(ctx, c, true)}
	})
}

// GetProviders collects every provider the lookup finds, local records included
func (d *DHT) GetProviders(key string) QueryID {
	return d.submit(QueryGetProviders, key, func(ctx context.Context) QueryResult {
		c, err := ContentKey(key)
		if err != nil {
			return QueryResult{Err: err}
		}

		seen := make(map[peer.ID]struct{})
		providers := []peer.ID{}
		for info := range d.router.FindProvidersAsync(ctx, c, 0) {
			if _, ok := seen[info.ID]; ok {
				continue
			}
			seen[info.ID] = struct{}{}
			providers = append(providers, info.ID)
			if d.host != nil && len(info.Addrs) > 0 {
				d.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.TempAddrTTL)
			}
		}
		return QueryResult{Providers: providers, Err: ctx.Err()}
	})
}

// PutRecord stores value under key locally and on the closest peers
func (d *DHT) PutRecord(key string, value []byte) QueryID {
	return d.submit(QueryPutRecord, key, func(ctx context.Context) QueryResult {
		return QueryResult{Err: d.router.PutValue(ctx, RecordKey(key), value)}
	})
}

// GetRecord reads key, stopping once the configured quorum has answered
func (d *DHT) GetRecord(key string) QueryID {
	return d.submit(QueryGetRecord, key, func(ctx context.Context) QueryResult {
		value, err := d.router.GetValue(ctx, RecordKey(key), dht.Quorum(d.quorum))
		if errors.Is(err, routing.ErrNotFound) {
			err = ErrNotFound
		}
		return QueryResult{Value: value, Err: err}
	})
}

// AddAddress records a peer's addresses and offers it to the routing table
func (d *DHT) AddAddress(info peer.AddrInfo) bool {
	if d.host != nil && len(info.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	}
	if d.kad == nil {
		return false
	}
	added, err := d.kad.RoutingTable().TryAddPeer(info.ID, true, false)
	if err != nil {
		d.log.Debug("Routing table rejected peer", zap.Stringer("peer", info.ID), zap.Error(err))
	}
	return added
}

// RoutingTableSize returns the number of peers in the routing table
func (d *DHT) RoutingTableSize() int {
	if d.kad == nil {
		return 0
	}
	return d.kad.RoutingTable().Size()
}

// Bootstrap refreshes the routing table
func (d *DHT) Bootstrap(ctx context.Context) error {
	if d.kad == nil {
		return nil
	}
	return d.kad.Bootstrap(ctx)
}

// ContentRouting returns the Kademlia instance for routing-based discovery,
// or nil when the DHT wraps a bare router
func (d *DHT) ContentRouting() routing.ContentRouting {
	if d.kad == nil {
		return nil
	}
	return d.kad
}

// Close shuts down the underlying DHT
func (d *DHT) Close() error {
	if d.kad == nil {
		return nil
	}
	return d.kad.Close()
}

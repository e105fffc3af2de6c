package node

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/protocol"
)

// Client is a handle to a node's event loop. It holds no network state,
// may be copied freely and is safe for concurrent use. Calls are queued in
// arrival order; with a queue of one, a call waits until the loop has taken
// the previous command.
type Client struct {
	commands chan<- command
	done     <-chan struct{}
}

// Status is a snapshot of the event loop's state
type Status struct {
	PeerID           peer.ID  `json:"peerId"`
	ListenAddrs      []string `json:"listenAddrs"`
	ConnectedPeers   int      `json:"connectedPeers"`
	RoutingTableSize int      `json:"routingTableSize"`
	PendingQueries   int      `json:"pendingQueries"`
	PendingRequests  int      `json:"pendingRequests"`
	PendingDials     int      `json:"pendingDials"`
	QueuedEvents     int      `json:"queuedEvents"`
}

// call enqueues cmd and waits for its reply
func call[T any](ctx context.Context, c Client, cmd command, reply <-chan T) (T, error) {
	var zero T

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrActorTerminated
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrActorTerminated
	}
}

// StartListening binds a listener on addr. It returns once the bind
// attempt completes; the address is logged when the listener is ready.
func (c Client) StartListening(ctx context.Context, addr multiaddr.Multiaddr) error {
	reply := make(chan error, 1)
	err, callErr := call[error](ctx, c, &startListeningCmd{addr: addr, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// Dial connects to p at addr and returns once the outcome is known
func (c Client) Dial(ctx context.Context, p peer.ID, addr multiaddr.Multiaddr) error {
	reply := make(chan error, 1)
	err, callErr := call[error](ctx, c, &dialCmd{peer: p, addr: addr, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// StartProviding advertises this node as a provider of key. The local
// record is always kept; a failure to publish it to other peers is only
// logged. The returned error is non-nil only for lifecycle failures.
func (c Client) StartProviding(ctx context.Context, key string) error {
	reply := make(chan error, 1)
	_, err := call[error](ctx, c, &startProvidingCmd{key: key, reply: reply}, reply)
	return err
}

// GetProviders returns the peers known to provide key. An empty result is not an error.
func (c Client) GetProviders(ctx context.Context, key string) ([]peer.ID, error) {
	reply := make(chan result[[]peer.ID], 1)
	r, err := call[result[[]peer.ID]](ctx, c, &getProvidersCmd{key: key, reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return r.val, r.err
}

// RequestFile asks p for the content stored under key. Failures are
// reported as *TransferError. Canceling ctx abandons the request.
func (c Client) RequestFile(ctx context.Context, p peer.ID, key string) (string, error) {
	reply := make(chan result[string], 1)
	r, err := call[result[string]](ctx, c, &requestFileCmd{ctx: ctx, peer: p, key: key, reply: reply}, reply)
	if err != nil {
		return "", err
	}
	return r.val, r.err
}

// RespondFile answers an inbound request. It returns once the command is queued.
func (c Client) RespondFile(ctx context.Context, content string, ch *protocol.ResponseChannel) error {
	select {
	case c.commands <- &respondFileCmd{content: content, channel: ch}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrActorTerminated
	}
}

// PutRecord stores value under key in the DHT
func (c Client) PutRecord(ctx context.Context, key string, value []byte) error {
	reply := make(chan error, 1)
	err, callErr := call[error](ctx, c, &putRecordCmd{key: key, value: value, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// GetRecord reads key from the DHT; a missing key yields ErrRecordNotFound
func (c Client) GetRecord(ctx context.Context, key string) ([]byte, error) {
	reply := make(chan result[[]byte], 1)
	r, err := call[result[[]byte]](ctx, c, &getRecordCmd{key: key, reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return r.val, r.err
}

// Status reports the loop's current state
func (c Client) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	return call[Status](ctx, c, &statusCmd{reply: reply}, reply)
}

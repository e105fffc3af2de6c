package node

import (
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/discovery"
	"github.com/zhubby/p2p-rs/internal/protocol"
)

var (
	// ErrActorTerminated is returned by every Client method once the node has shut down
	ErrActorTerminated = errors.New("network actor terminated")
	// ErrRecordNotFound is returned by GetRecord when no peer holds the key
	ErrRecordNotFound = discovery.ErrNotFound
	// ErrNoProviders is returned by FetchFromAny when there is nobody to ask
	ErrNoProviders = errors.New("could not find provider for file")
	// ErrAllProvidersFailed is returned by FetchFromAny when every provider failed
	ErrAllProvidersFailed = errors.New("none of the providers returned file")

	errDuplicateEntry = errors.New("duplicate pending entry")
)

// TransferError reports a failed file request
type TransferError = protocol.TransferError

// TransportError reports a failed listen or dial
type TransportError struct {
	Op   string
	Peer peer.ID
	Addr multiaddr.Multiaddr
	Err  error
}

func (e *TransportError) Error() string {
	switch {
	case e.Peer != "" && e.Addr != nil:
		return fmt.Sprintf("%s %s at %s: %v", e.Op, e.Peer, e.Addr, e.Err)
	case e.Peer != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QueryError reports a DHT query that reached a failed terminal state
type QueryError struct {
	Kind discovery.QueryKind
	Key  string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Key, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

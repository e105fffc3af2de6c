package node

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/discovery"
	"github.com/zhubby/p2p-rs/internal/protocol"
)

// InboundRequest is delivered on Node.Events when a peer asks for a key.
// The application answers with Client.RespondFile or drops the channel.
type InboundRequest = protocol.InboundRequest

// swarmEvent is anything the host, DHT or protocol reports to the event loop
type swarmEvent interface {
	isSwarmEvent()
}

type listenAddrAdded struct {
	addr multiaddr.Multiaddr
}

type connectionEstablished struct {
	peer      peer.ID
	addr      multiaddr.Multiaddr
	direction network.Direction
}

type connectionClosed struct {
	peer peer.ID
}

type peerDiscovered struct {
	info peer.AddrInfo
}

type queryCompleted struct {
	result discovery.QueryResult
}

type inboundRequest struct {
	req protocol.InboundRequest
}

type inboundResponse struct {
	resp protocol.Response
}

type dialCompleted struct {
	peer peer.ID
	addr multiaddr.Multiaddr
	err  error
}

func (listenAddrAdded) isSwarmEvent()       {}
func (connectionEstablished) isSwarmEvent() {}
func (connectionClosed) isSwarmEvent()      {}
func (peerDiscovered) isSwarmEvent()        {}
func (queryCompleted) isSwarmEvent()        {}
func (inboundRequest) isSwarmEvent()        {}
func (inboundResponse) isSwarmEvent()       {}
func (dialCompleted) isSwarmEvent()         {}

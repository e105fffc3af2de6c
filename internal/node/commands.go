package node

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/zhubby/p2p-rs/internal/protocol"
)

// command is a request sent from a Client to the event loop. Every reply
// channel is buffered so the loop never blocks answering an abandoned call.
type command interface {
	name() string
}

type result[T any] struct {
	val T
	err error
}

type startListeningCmd struct {
	addr  multiaddr.Multiaddr
	reply chan error
}

type dialCmd struct {
	peer  peer.ID
	addr  multiaddr.Multiaddr
	reply chan error
}

type startProvidingCmd struct {
	key   string
	reply chan error
}

type getProvidersCmd struct {
	key   string
	reply chan result[[]peer.ID]
}

// requestFileCmd carries the caller's context so an abandoned request resets its stream
type requestFileCmd struct {
	ctx   context.Context
	peer  peer.ID
	key   string
	reply chan result[string]
}

type respondFileCmd struct {
	content string
	channel *protocol.ResponseChannel
}

type putRecordCmd struct {
	key   string
	value []byte
	reply chan error
}

type getRecordCmd struct {
	key   string
	reply chan result[[]byte]
}

type statusCmd struct {
	reply chan Status
}

func (*startListeningCmd) name() string { return "start_listening" }
func (*dialCmd) name() string           { return "dial" }
func (*startProvidingCmd) name() string { return "start_providing" }
func (*getProvidersCmd) name() string   { return "get_providers" }
func (*requestFileCmd) name() string    { return "request_file" }
func (*respondFileCmd) name() string    { return "respond_file" }
func (*putRecordCmd) name() string      { return "put_record" }
func (*getRecordCmd) name() string      { return "get_record" }
func (*statusCmd) name() string         { return "status" }

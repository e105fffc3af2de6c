package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	p2pproto "github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"
)

// DefaultID is the file exchange protocol identifier
const DefaultID = "/dfs/1"

// RequestID correlates an outbound request with its response
type RequestID uint64

// InboundRequest is a file request received from a remote peer
type InboundRequest struct {
	Peer    peer.ID
	Key     string
	Channel *ResponseChannel
}

// Response is the outcome of an outbound request
type Response struct {
	ID      RequestID
	Peer    peer.ID
	Content string
	Err     error
}

// Options configures the file exchange protocol
type Options struct {
	ID             string
	MaxFrameSize   int
	RequestTimeout time.Duration // zero waits indefinitely
}

// Handlers receive protocol events. Both are called from stream goroutines
// and may block.
type Handlers struct {
	OnRequest  func(InboundRequest)
	OnResponse func(Response)
}

// Service runs one request and one response per stream over a libp2p host
type Service struct {
	ctx      context.Context
	host     host.Host
	id       p2pproto.ID
	codec    Codec
	timeout  time.Duration
	handlers Handlers
	nextID   atomic.Uint64
	log      *zap.Logger
}

// NewService creates a file exchange service; call Start to accept inbound streams
func NewService(ctx context.Context, h host.Host, opts Options, handlers Handlers, log *zap.Logger) *Service {
	id := opts.ID
	if id == "" {
		id = DefaultID
	}
	return &Service{
		ctx:      ctx,
		host:     h,
		id:       p2pproto.ID(id),
		codec:    NewCodec(opts.MaxFrameSize),
		timeout:  opts.RequestTimeout,
		handlers: handlers,
		log:      log.Named("protocol"),
	}
}

// Start registers the inbound stream handler
func (s *Service) Start() {
	s.host.SetStreamHandler(s.id, s.handleStream)
}

// Stop removes the inbound stream handler
func (s *Service) Stop() {
	s.host.RemoveStreamHandler(s.id)
}

// ProtocolID returns the negotiated protocol identifier
func (s *Service) ProtocolID() p2pproto.ID {
	return s.id
}

// SendRequest asks p for the content stored under key. The outcome is
// delivered to OnResponse with the returned id. Canceling ctx resets the stream.
func (s *Service) SendRequest(ctx context.Context, p peer.ID, key string) RequestID {
	id := RequestID(s.nextID.Add(1))
	go func() {
		content, err := s.roundTrip(ctx, p, key)
		s.handlers.OnResponse(Response{ID: id, Peer: p, Content: content, Err: err})
	}()
	return id
}

func (s *Service) roundTrip(ctx context.Context, p peer.ID, key string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stream, err := s.host.NewStream(ctx, p, s.id)
	if err != nil {
		return "", &TransferError{Kind: classify(ctx, err, true), Peer: p, Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Reset()
	})
	defer stop()

	fail := func(err error) (string, error) {
		_ = stream.Reset()
		return "", &TransferError{Kind: classify(ctx, err, false), Peer: p, Err: err}
	}

	if err := s.codec.WriteFrame(stream, key); err != nil {
		return fail(err)
	}
	if err := stream.CloseWrite(); err != nil {
		return fail(err)
	}
	content, err := s.codec.ReadFrame(stream)
	if err != nil {
		return fail(err)
	}
	_ = stream.Close()
	return content, nil
}

func (s *Service) handleStream(stream network.Stream) {
	remote := stream.Conn().RemotePeer()
	if s.timeout > 0 {
		_ = stream.SetReadDeadline(time.Now().Add(s.timeout))
	}

	key, err := s.codec.ReadFrame(stream)
	if err != nil {
		s.log.Debug("Rejecting malformed request", zap.Stringer("peer", remote), zap.Error(err))
		_ = stream.Reset()
		return
	}

	ch := NewResponseChannel(remote)
	s.handlers.OnRequest(InboundRequest{Peer: remote, Key: key, Channel: ch})

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	content, ok := ch.Wait(ctx)
	if !ok {
		_ = stream.Reset()
		return
	}

	if err := s.codec.WriteFrame(stream, content); err != nil {
		s.log.Warn("Failed to send response", zap.Stringer("peer", remote), zap.String("key", key), zap.Error(err))
		_ = stream.Reset()
		return
	}
	// Close signals the requester that the response is complete
	_ = stream.Close()
}

package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// ErrChannelConsumed is returned when a response channel is answered twice
var ErrChannelConsumed = errors.New("response channel already consumed")

// FailureKind classifies why an outbound file request did not produce content
type FailureKind int

const (
	// FailureUnreachable means no stream could be opened to the peer
	FailureUnreachable FailureKind = iota
	// FailureTimeout means the configured request timeout elapsed
	FailureTimeout
	// FailureConnectionClosed means the stream was reset or closed before a response arrived
	FailureConnectionClosed
	// FailureProtocol means the response violated the framing rules
	FailureProtocol
	// FailureCanceled means the requester gave up
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnreachable:
		return "unreachable"
	case FailureTimeout:
		return "timeout"
	case FailureConnectionClosed:
		return "connection closed"
	case FailureProtocol:
		return "protocol violation"
	case FailureCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// TransferError reports a failed outbound file request
type TransferError struct {
	Kind FailureKind
	Peer peer.ID
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("file request to %s failed (%s): %v", e.Peer, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// classify maps a stream error to a failure kind
func classify(ctx context.Context, err error, opening bool) FailureKind {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return FailureCanceled
	case IsCodecError(err):
		return FailureProtocol
	case opening:
		return FailureUnreachable
	default:
		return FailureConnectionClosed
	}
}

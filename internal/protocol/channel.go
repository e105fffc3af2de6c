package protocol

import (
	"context"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/peer"
)

// ResponseChannel answers exactly one inbound file request.
// It is consumed by Respond or Drop, whichever comes first.
type ResponseChannel struct {
	peer     peer.ID
	consumed atomic.Bool
	reply    chan reply
}

type reply struct {
	content string
	ok      bool
}

// NewResponseChannel creates an unconsumed channel for a request from p
func NewResponseChannel(p peer.ID) *ResponseChannel {
	return &ResponseChannel{
		peer:  p,
		reply: make(chan reply, 1),
	}
}

// Peer returns the requesting peer
func (c *ResponseChannel) Peer() peer.ID {
	return c.peer
}

// Respond hands content to the stream that is waiting on this channel
func (c *ResponseChannel) Respond(content string) error {
	if !c.consumed.CompareAndSwap(false, true) {
		return ErrChannelConsumed
	}
	c.reply <- reply{content: content, ok: true}
	return nil
}

// Drop abandons the request; the requester observes a failed transfer
func (c *ResponseChannel) Drop() {
	if c.consumed.CompareAndSwap(false, true) {
		c.reply <- reply{}
	}
}

// Consumed reports whether Respond or Drop has been called
func (c *ResponseChannel) Consumed() bool {
	return c.consumed.Load()
}

// Wait blocks until the channel is answered or ctx ends.
// ok is false when the request was dropped or abandoned.
func (c *ResponseChannel) Wait(ctx context.Context) (content string, ok bool) {
	select {
	case r := <-c.reply:
		return r.content, r.ok
	case <-ctx.Done():
		c.consumed.Store(true)
		return "", false
	}
}

// Package chat is a GossipSub chat room over the node's host
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	discoveryrouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"go.uber.org/zap"
)

// DefaultTopic is the room every chat peer joins unless told otherwise
const DefaultTopic = "chat"

// Message is one line of chat as carried on the topic
type Message struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	From   peer.ID   `json:"-"`
}

// Room is a joined topic. Messages from other peers arrive on Messages.
type Room struct {
	Messages chan *Message

	ctx    context.Context
	cancel context.CancelFunc
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	self   peer.ID
	name   string
	log    *zap.Logger
}

// NewGossipSub starts GossipSub on h. When cr is non-nil, topic peers are
// also found through the DHT.
func NewGossipSub(ctx context.Context, h host.Host, cr routing.ContentRouting) (*pubsub.PubSub, error) {
	var opts []pubsub.Option
	if cr != nil {
		opts = append(opts, pubsub.WithDiscovery(discoveryrouting.NewRoutingDiscovery(cr)))
	}
	ps, err := pubsub.NewGossipSub(ctx, h, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}
	return ps, nil
}

// Join subscribes to topic and starts delivering messages
func Join(ctx context.Context, ps *pubsub.PubSub, self peer.ID, topic string, log *zap.Logger) (*Room, error) {
	t, err := ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic: %w", err)
	}

	sub, err := t.Subscribe()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Room{
		Messages: make(chan *Message, 32),
		ctx:      ctx,
		cancel:   cancel,
		ps:       ps,
		topic:    t,
		sub:      sub,
		self:     self,
		name:     topic,
		log:      log.Named("chat"),
	}
	go r.readLoop()
	return r, nil
}

// Publish sends text to everyone in the room
func (r *Room) Publish(text string) error {
	data, err := json.Marshal(Message{Text: text, SentAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := r.topic.Publish(r.ctx, data); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// ListPeers returns the peers currently in the room
func (r *Room) ListPeers() []peer.ID {
	return r.ps.ListPeers(r.name)
}

// Close leaves the room
func (r *Room) Close() error {
	r.cancel()
	r.sub.Cancel()
	return r.topic.Close()
}

func (r *Room) readLoop() {
	defer close(r.Messages)

	for {
		msg, err := r.sub.Next(r.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.log.Warn("Error reading from topic", zap.Error(err))
			}
			return
		}
		if msg.ReceivedFrom == r.self {
			continue
		}

		var decoded Message
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			r.log.Debug("Error unmarshaling chat message", zap.Error(err))
			continue
		}
		decoded.From = msg.GetFrom()

		select {
		case r.Messages <- &decoded:
		case <-r.ctx.Done():
			return
		}
	}
}

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		t.Fatalf("Failed to create libp2p host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func joinRoom(t *testing.T, ctx context.Context, h host.Host) *Room {
	t.Helper()
	ps, err := NewGossipSub(ctx, h, nil)
	require.NoError(t, err)
	room, err := Join(ctx, ps, h.ID(), DefaultTopic, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { room.Close() })
	return room
}

func TestRoomDeliversMessagesBetweenPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pubsub test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newTestHost(t)
	bob := newTestHost(t)
	aliceRoom := joinRoom(t, ctx, alice)
	bobRoom := joinRoom(t, ctx, bob)

	require.NoError(t, alice.Connect(ctx, peer.AddrInfo{ID: bob.ID(), Addrs: bob.Addrs()}))
	require.Eventually(t, func() bool {
		return len(aliceRoom.ListPeers()) == 1 && len(bobRoom.ListPeers()) == 1
	}, 10*time.Second, 50*time.Millisecond)

	// The mesh forms a heartbeat after the peers see each other, so resend
	// until the router delivers
	var got *Message
	require.Eventually(t, func() bool {
		if err := aliceRoom.Publish("hello bob"); err != nil {
			return false
		}
		select {
		case got = <-bobRoom.Messages:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond, "bob never received the message")
	assert.Equal(t, "hello bob", got.Text)
	assert.Equal(t, alice.ID(), got.From)

	// Our own messages are not echoed back
	select {
	case msg := <-aliceRoom.Messages:
		t.Fatalf("alice received her own message: %q", msg.Text)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRoomCloseEndsMessages(t *testing.T) {
	ctx := context.Background()
	room := joinRoom(t, ctx, newTestHost(t))

	require.NoError(t, room.Close())
	select {
	case _, ok := <-room.Messages:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Messages was not closed")
	}
}

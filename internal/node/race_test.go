package node

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRequester answers per peer after an optional delay
type scriptedRequester struct {
	answers map[peer.ID]string
	fails   map[peer.ID]error
	delay   map[peer.ID]time.Duration
	aborted chan peer.ID
}

func (s *scriptedRequester) RequestFile(ctx context.Context, p peer.ID, key string) (string, error) {
	select {
	case <-time.After(s.delay[p]):
	case <-ctx.Done():
		if s.aborted != nil {
			s.aborted <- p
		}
		return "", ctx.Err()
	}
	if err, ok := s.fails[p]; ok {
		return "", err
	}
	return s.answers[p], nil
}

func TestFetchFromAnyNoProviders(t *testing.T) {
	_, _, err := FetchFromAny(context.Background(), &scriptedRequester{}, nil, "k")
	require.ErrorIs(t, err, ErrNoProviders)
	assert.Equal(t, "could not find provider for file", err.Error())
}

func TestFetchFromAnyFirstSuccessWins(t *testing.T) {
	r := &scriptedRequester{
		answers: map[peer.ID]string{"fast": "from fast", "slow": "from slow"},
		delay:   map[peer.ID]time.Duration{"slow": time.Minute},
		aborted: make(chan peer.ID, 2),
	}

	content, from, err := FetchFromAny(context.Background(), r, []peer.ID{"slow", "fast"}, "k")
	require.NoError(t, err)
	assert.Equal(t, "from fast", content)
	assert.Equal(t, peer.ID("fast"), from)

	select {
	case p := <-r.aborted:
		assert.Equal(t, peer.ID("slow"), p)
	case <-time.After(5 * time.Second):
		t.Fatal("losing request was not canceled")
	}
}

func TestFetchFromAnySuccessAfterFailures(t *testing.T) {
	r := &scriptedRequester{
		answers: map[peer.ID]string{"good": "content"},
		fails:   map[peer.ID]error{"bad": errors.New("connection closed")},
		delay:   map[peer.ID]time.Duration{"good": 50 * time.Millisecond},
	}

	content, from, err := FetchFromAny(context.Background(), r, []peer.ID{"bad", "good"}, "k")
	require.NoError(t, err)
	assert.Equal(t, "content", content)
	assert.Equal(t, peer.ID("good"), from)
}

func TestFetchFromAnyAllFail(t *testing.T) {
	r := &scriptedRequester{
		fails: map[peer.ID]error{
			"a": errors.New("stream reset"),
			"b": errors.New("unexpected EOF"),
		},
	}

	_, _, err := FetchFromAny(context.Background(), r, []peer.ID{"a", "b"}, "k")
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.True(t, strings.Contains(err.Error(), "stream reset"), err.Error())
	assert.True(t, strings.Contains(err.Error(), "unexpected EOF"), err.Error())
}

func TestFetchFromAnyCallerCanceled(t *testing.T) {
	r := &scriptedRequester{delay: map[peer.ID]time.Duration{"a": time.Minute}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := FetchFromAny(ctx, r, []peer.ID{"a"}, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

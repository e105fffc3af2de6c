package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientBackpressure(t *testing.T) {
	commands := make(chan command, 1)
	done := make(chan struct{})
	c := Client{commands: commands, done: done}

	// Nobody drains the queue: the first call occupies the single slot
	first := make(chan error, 1)
	go func() {
		_, err := c.Status(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return len(commands) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.GetProviders(ctx, "report.txt")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Take the queued command and answer it
	cmd := (<-commands).(*statusCmd)
	cmd.reply <- Status{PendingQueries: 3}
	require.NoError(t, <-first)
}

func TestClientAfterTermination(t *testing.T) {
	commands := make(chan command)
	done := make(chan struct{})
	close(done)
	c := Client{commands: commands, done: done}

	ctx := context.Background()
	if err := c.StartProviding(ctx, "k"); !errors.Is(err, ErrActorTerminated) {
		t.Errorf("StartProviding: expected ErrActorTerminated, got %v", err)
	}
	if _, err := c.GetProviders(ctx, "k"); !errors.Is(err, ErrActorTerminated) {
		t.Errorf("GetProviders: expected ErrActorTerminated, got %v", err)
	}
	if _, err := c.RequestFile(ctx, "", "k"); !errors.Is(err, ErrActorTerminated) {
		t.Errorf("RequestFile: expected ErrActorTerminated, got %v", err)
	}
	if err := c.RespondFile(ctx, "x", nil); !errors.Is(err, ErrActorTerminated) {
		t.Errorf("RespondFile: expected ErrActorTerminated, got %v", err)
	}
}

func TestClientTerminationWhileWaitingForReply(t *testing.T) {
	commands := make(chan command, 1)
	done := make(chan struct{})
	c := Client{commands: commands, done: done}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetRecord(context.Background(), "k")
		errCh <- err
	}()

	// The loop takes the command, then dies without answering
	<-commands
	close(done)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrActorTerminated)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not observe termination")
	}
}

func TestClientStartProvidingIgnoresReplyValue(t *testing.T) {
	commands := make(chan command, 1)
	c := Client{commands: commands, done: make(chan struct{})}

	go func() {
		cmd := (<-commands).(*startProvidingCmd)
		cmd.reply <- nil
	}()

	require.NoError(t, c.StartProviding(context.Background(), "k"))
}

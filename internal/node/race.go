package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// FileRequester fetches a key from a single peer; Client satisfies it
type FileRequester interface {
	RequestFile(ctx context.Context, p peer.ID, key string) (string, error)
}

var _ FileRequester = Client{}

// errFound stops the group once one provider has answered
var errFound = errors.New("content found")

// FetchFromAny requests key from every provider at once and returns the first
// successful answer. The remaining requests are canceled. When every provider
// fails the error wraps ErrAllProvidersFailed together with each failure.
func FetchFromAny(ctx context.Context, r FileRequester, providers []peer.ID, key string) (string, peer.ID, error) {
	if len(providers) == 0 {
		return "", "", ErrNoProviders
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		won     bool
		content string
		from    peer.ID
		errs    error
	)

	for _, p := range providers {
		p := p
		g.Go(func() error {
			got, err := r.RequestFile(gctx, p, key)

			mu.Lock()
			defer mu.Unlock()
			if won {
				return nil
			}
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, err))
				return nil
			}
			won, content, from = true, got, p
			return errFound
		})
	}

	_ = g.Wait()

	if won {
		return content, from, nil
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	return "", "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRouter records calls and serves canned answers
type fakeRouter struct {
	mu        sync.Mutex
	provided  []cid.Cid
	providers map[cid.Cid][]peer.AddrInfo
	values    map[string][]byte
	putErr    error
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		providers: make(map[cid.Cid][]peer.AddrInfo),
		values:    make(map[string][]byte),
	}
}

func (f *fakeRouter) Provide(ctx context.Context, key cid.Cid, announce bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provided = append(f.provided, key)
	return nil
}

func (f *fakeRouter) FindProvidersAsync(ctx context.Context, key cid.Cid, count int) <-chan peer.AddrInfo {
	f.mu.Lock()
	infos := append([]peer.AddrInfo(nil), f.providers[key]...)
	f.mu.Unlock()

	ch := make(chan peer.AddrInfo, len(infos))
	for _, info := range infos {
		ch <- info
	}
	close(ch)
	return ch
}

func (f *fakeRouter) PutValue(ctx context.Context, key string, value []byte, opts ...routing.Option) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeRouter) GetValue(ctx context.Context, key string, opts ...routing.Option) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return nil, routing.ErrNotFound
	}
	return v, nil
}

func newFakeDHT(t *testing.T, r Router) (*DHT, chan QueryResult) {
	t.Helper()
	results := make(chan QueryResult, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewWithRouter(ctx, r, 1, func(res QueryResult) { results <- res }, zap.NewNop()), results
}

func awaitResult(t *testing.T, results chan QueryResult) QueryResult {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("query never completed")
		return QueryResult{}
	}
}

func TestQueryIDsAreDistinct(t *testing.T) {
	d, results := newFakeDHT(t, newFakeRouter())

	seen := make(map[QueryID]bool)
	for i := 0; i < 4; i++ {
		id := d.GetProviders("k")
		require.False(t, seen[id], "query id %d reused", id)
		seen[id] = true
	}
	for i := 0; i < 4; i++ {
		res := awaitResult(t, results)
		require.True(t, seen[res.ID])
		require.Equal(t, QueryGetProviders, res.Kind)
	}
}

func TestGetProvidersDeduplicates(t *testing.T) {
	router := newFakeRouter()
	c, err := ContentKey("report.txt")
	require.NoError(t, err)

	a, b := peer.ID("peer-a"), peer.ID("peer-b")
	router.providers[c] = []peer.AddrInfo{{ID: a}, {ID: b}, {ID: a}}

	d, results := newFakeDHT(t, router)
	id := d.GetProviders("report.txt")

	res := awaitResult(t, results)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, "report.txt", res.Key)
	assert.NoError(t, res.Err)
	assert.ElementsMatch(t, []peer.ID{a, b}, res.Providers)
}

func TestGetProvidersMissingKeyIsEmpty(t *testing.T) {
	d, results := newFakeDHT(t, newFakeRouter())
	d.GetProviders("missing-key")

	res := awaitResult(t, results)
	assert.NoError(t, res.Err)
	assert.NotNil(t, res.Providers)
	assert.Empty(t, res.Providers)
}

func TestStartProvidingUsesContentKey(t *testing.T) {
	router := newFakeRouter()
	d, results := newFakeDHT(t, router)
	d.StartProviding("report.txt")

	res := awaitResult(t, results)
	require.NoError(t, res.Err)
	require.Equal(t, QueryStartProviding, res.Kind)

	want, err := ContentKey("report.txt")
	require.NoError(t, err)
	router.mu.Lock()
	defer router.mu.Unlock()
	require.Equal(t, []cid.Cid{want}, router.provided)
}

func TestRecordsAreNamespaced(t *testing.T) {
	router := newFakeRouter()
	d, results := newFakeDHT(t, router)

	d.PutRecord("color", []byte("blue"))
	require.NoError(t, awaitResult(t, results).Err)
	require.Equal(t, []byte("blue"), router.values["/v/color"])

	d.GetRecord("color")
	res := awaitResult(t, results)
	require.NoError(t, res.Err)
	require.Equal(t, []byte("blue"), res.Value)

	d.GetRecord("shape")
	res = awaitResult(t, results)
	require.ErrorIs(t, res.Err, ErrNotFound)
}

func TestPutRecordFailureIsReported(t *testing.T) {
	router := newFakeRouter()
	router.putErr = errors.New("failed to find any peer in table")
	d, results := newFakeDHT(t, router)

	d.PutRecord("color", []byte("blue"))
	res := awaitResult(t, results)
	require.Error(t, res.Err)
	require.Equal(t, QueryPutRecord, res.Kind)
}

func TestValidator(t *testing.T) {
	v := Validator()
	assert.NoError(t, v.Validate(RecordKey("k"), []byte("anything")))
	assert.Error(t, v.Validate("/pk/k", []byte("anything")))

	idx, err := v.Select(RecordKey("k"), [][]byte{[]byte("new"), []byte("old")})
	assert.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestContentKeyIsStable(t *testing.T) {
	a, err := ContentKey("report.txt")
	require.NoError(t, err)
	b, err := ContentKey("report.txt")
	require.NoError(t, err)
	c, err := ContentKey("other.txt")
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.Equal(t, uint64(cid.Raw), a.Type())
}

func TestLocalProviderRecordWithoutPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	defer h.Close()

	results := make(chan QueryResult, 2)
	d, err := New(ctx, h, Options{ProtocolPrefix: "/dfs-test"}, func(r QueryResult) { results <- r }, zap.NewNop())
	require.NoError(t, err)
	defer d.Close()

	// Publishing fails with an empty routing table, but the record is kept locally
	d.StartProviding("report.txt")
	awaitResult(t, results)

	d.GetProviders("report.txt")
	res := awaitResult(t, results)
	require.Contains(t, res.Providers, h.ID())
	require.Equal(t, 0, d.RoutingTableSize())
}

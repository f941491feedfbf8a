package formcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/formcache/codec"
	"github.com/unkn0wn-root/formcache/internal/wire"
	pr "github.com/unkn0wn-root/formcache/provider"
)

type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte

	getErr error
	setErr error
	delErr error
}

var _ pr.Provider = (*memProvider)(nil)

type stringCodec struct{}

func (stringCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

var _ c.Codec[string] = stringCodec{}

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return false, p.setErr
	}
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delErr != nil {
		return p.delErr
	}
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type failingGenStore struct{ err error }

func (g failingGenStore) Snapshot(context.Context, string) (uint64, error) { return 0, nil }
func (g failingGenStore) Bump(context.Context, string) (uint64, error)     { return 0, g.err }
func (g failingGenStore) Cleanup(time.Duration)                            {}
func (g failingGenStore) Close(context.Context) error                      { return nil }

type recordingHooks struct {
	NopHooks
	mu       sync.Mutex
	healed   []string
	outages  int
	provErrs []string
}

func (h *recordingHooks) SelfHealSingle(_ string, reason string) {
	h.mu.Lock()
	h.healed = append(h.healed, reason)
	h.mu.Unlock()
}

func (h *recordingHooks) ProviderError(op, _ string, _ error) {
	h.mu.Lock()
	h.provErrs = append(h.provErrs, op)
	h.mu.Unlock()
}

func (h *recordingHooks) InvalidateOutage(string, error, error) {
	h.mu.Lock()
	h.outages++
	h.mu.Unlock()
}

func newTestCache(t *testing.T, mp pr.Provider, clk *fakeClock, optsOpt func(*Options[string])) Cache[string] {
	t.Helper()
	opts := Options[string]{
		Namespace: "forms",
		Provider:  mp,
		Codec:     stringCodec{},
		Clock:     clk.Now,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[string](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func mustImpl[V any](t *testing.T, c Cache[V]) *cache[V] {
	t.Helper()
	impl, ok := c.(*cache[V])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func constLoader(v string, ttl time.Duration, calls *atomic.Int32) LoadFunc[string] {
	return func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		return v, ttl, nil
	}
}

func TestNewValidatesRequired(t *testing.T) {
	mp := newMemProvider()
	if _, err := New[string](Options[string]{Codec: stringCodec{}, Namespace: "n"}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("want ErrNoProvider, got %v", err)
	}
	if _, err := New[string](Options[string]{Provider: mp, Namespace: "n"}); !errors.Is(err, ErrNoCodec) {
		t.Fatalf("want ErrNoCodec, got %v", err)
	}
	if _, err := New[string](Options[string]{Provider: mp, Codec: stringCodec{}}); !errors.Is(err, ErrNoNamespace) {
		t.Fatalf("want ErrNoNamespace, got %v", err)
	}
}

// TestGetOrLoadStoresWithLoaderTTL verifies the loader's TTL becomes the entry expiry.
func TestGetOrLoadStoresWithLoaderTTL(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	mp := newMemProvider()
	cc := newTestCache(t, mp, clk, nil)

	var calls atomic.Int32
	v, err := cc.GetOrLoad(ctx, "k", constLoader("A", 15*time.Minute, &calls))
	if err != nil || v != "A" {
		t.Fatalf("GetOrLoad v=%q err=%v", v, err)
	}

	at, ok, err := cc.Expiry(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Expiry ok=%v err=%v", ok, err)
	}
	if want := clk.Now().Add(15 * time.Minute); !at.Equal(want) {
		t.Fatalf("expiry=%v want %v", at, want)
	}

	raw, ok := mp.raw(mustImpl(t, cc).singleKey("k"))
	if !ok {
		t.Fatalf("entry not written to provider")
	}
	e, err := wire.DecodeSingle(raw)
	if err != nil || string(e.Payload) != "A" {
		t.Fatalf("frame payload=%q err=%v", e.Payload, err)
	}
}

func TestGetOrLoadHitSkipsLoader(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), newFakeClock(), nil)

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		v, err := cc.GetOrLoad(ctx, "k", constLoader("A", time.Hour, &calls))
		if err != nil || v != "A" {
			t.Fatalf("call %d: v=%q err=%v", i, v, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("loader calls=%d want 1", n)
	}
}

func TestExpiredEntryReloads(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	hooks := &recordingHooks{}
	cc := newTestCache(t, newMemProvider(), clk, func(o *Options[string]) { o.Hooks = hooks })

	var calls atomic.Int32
	_, _ = cc.GetOrLoad(ctx, "k", constLoader("A", time.Hour, &calls))

	clk.Advance(time.Hour - time.Second)
	if _, ok, _ := cc.Get(ctx, "k"); !ok {
		t.Fatalf("entry gone before expiry")
	}

	clk.Advance(time.Second)
	if _, ok, _ := cc.Get(ctx, "k"); ok {
		t.Fatalf("expired entry served")
	}
	if len(hooks.healed) != 1 || hooks.healed[0] != "expired" {
		t.Fatalf("expected one expired self-heal, got %v", hooks.healed)
	}

	v, _ := cc.GetOrLoad(ctx, "k", constLoader("B", time.Hour, &calls))
	if v != "B" || calls.Load() != 2 {
		t.Fatalf("expected reload: v=%q calls=%d", v, calls.Load())
	}
}

func TestLoaderErrorNotStored(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), newFakeClock(), nil)

	boom := errors.New("boom")
	_, err := cc.GetOrLoad(ctx, "k", func(context.Context) (string, time.Duration, error) {
		return "", 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
	if _, ok, _ := cc.Get(ctx, "k"); ok {
		t.Fatalf("failed load must not populate the cache")
	}
}

// TestInvalidateDuringLoadWins: a load that started before Invalidate must not store.
func TestInvalidateDuringLoadWins(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), newFakeClock(), nil)

	v, err := cc.GetOrLoad(ctx, "k", func(ctx context.Context) (string, time.Duration, error) {
		if err := cc.Invalidate(ctx, "k"); err != nil {
			t.Errorf("Invalidate: %v", err)
		}
		return "stale", time.Hour, nil
	})
	if err != nil || v != "stale" {
		t.Fatalf("caller should still get the loaded value, v=%q err=%v", v, err)
	}
	if _, ok, _ := cc.Get(ctx, "k"); ok {
		t.Fatalf("stale load overwrote invalidation")
	}
	if g := cc.SnapshotGen("k"); g != 1 {
		t.Fatalf("gen=%d want 1", g)
	}
}

func TestSingleFlightCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), newFakeClock(), nil)

	const n = 8
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(context.Context) (string, time.Duration, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "A", time.Hour, nil
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = cc.GetOrLoad(ctx, "k", load)
	}()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cc.GetOrLoad(ctx, "k", load)
		}(i)
	}
	// let the followers reach the flight before releasing the leader
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	for i, r := range results {
		if r != "A" {
			t.Fatalf("result[%d]=%q", i, r)
		}
	}
}

func TestDisableSingleFlightLoadsPerCaller(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), newFakeClock(), func(o *Options[string]) {
		o.DisableSingleFlight = true
	})

	const n = 4
	var calls atomic.Int32
	var entered sync.WaitGroup
	entered.Add(n)
	release := make(chan struct{})
	load := func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		entered.Done()
		<-release
		return "A", time.Hour, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cc.GetOrLoad(ctx, "k", load)
		}()
	}
	entered.Wait() // every caller is inside its own loader
	close(release)
	wg.Wait()

	if got := calls.Load(); got != n {
		t.Fatalf("loader ran %d times, want %d", got, n)
	}
}

func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &recordingHooks{}
	cc := newTestCache(t, mp, newFakeClock(), func(o *Options[string]) { o.Hooks = hooks })
	impl := mustImpl(t, cc)

	k := impl.singleKey("bad")
	_, _ = mp.Set(ctx, k, []byte("not-wire-format"), 1, time.Minute)

	if _, ok, err := cc.Get(ctx, "bad"); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok := mp.raw(k); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	// valid frame written under gen 0, then made stale by a bump
	_, _ = mp.Set(ctx, k, wire.EncodeSingle(0, time.Time{}, []byte("x")), 1, time.Minute)
	_, _ = impl.gen.Bump(ctx, k)
	if _, ok, _ := cc.Get(ctx, "bad"); ok {
		t.Fatalf("stale entry served")
	}
	if _, ok := mp.raw(k); ok {
		t.Fatalf("stale entry was not deleted by self-heal")
	}

	want := []string{"corrupt", "gen_mismatch"}
	if len(hooks.healed) != len(want) || hooks.healed[0] != want[0] || hooks.healed[1] != want[1] {
		t.Fatalf("self-heal reasons=%v want %v", hooks.healed, want)
	}
}

func TestProviderGetErrorDegradesToLoad(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.getErr = errors.New("connection refused")
	cc := newTestCache(t, mp, newFakeClock(), nil)

	var calls atomic.Int32
	v, err := cc.GetOrLoad(ctx, "k", constLoader("A", time.Hour, &calls))
	if err != nil || v != "A" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if _, _, err := cc.Get(ctx, "k"); err == nil {
		t.Fatalf("Get should surface the provider error")
	}
}

func TestProviderSetErrorStillReturnsValue(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.setErr = errors.New("read-only replica")
	hooks := &recordingHooks{}
	cc := newTestCache(t, mp, newFakeClock(), func(o *Options[string]) { o.Hooks = hooks })

	var calls atomic.Int32
	v, err := cc.GetOrLoad(ctx, "k", constLoader("A", time.Hour, &calls))
	if err != nil || v != "A" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if len(hooks.provErrs) != 1 || hooks.provErrs[0] != "set" {
		t.Fatalf("provider errors=%v", hooks.provErrs)
	}
}

func TestInvalidateReportsFailures(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.delErr = errors.New("del failed")
	bumpErr := errors.New("bump failed")
	hooks := &recordingHooks{}
	cc := newTestCache(t, mp, newFakeClock(), func(o *Options[string]) {
		o.GenStore = failingGenStore{err: bumpErr}
		o.Hooks = hooks
	})

	err := cc.Invalidate(ctx, "k")
	var ie *InvalidateError
	if !errors.As(err, &ie) {
		t.Fatalf("want *InvalidateError, got %T %v", err, err)
	}
	if !errors.Is(err, bumpErr) || !errors.Is(err, mp.delErr) {
		t.Fatalf("InvalidateError must unwrap both causes: %v", err)
	}
	if hooks.outages != 1 {
		t.Fatalf("outage hook calls=%d want 1", hooks.outages)
	}
}

func TestDisabledAlwaysLoads(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newTestCache(t, mp, newFakeClock(), func(o *Options[string]) { o.Disabled = true })

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		if v, err := cc.GetOrLoad(ctx, "k", constLoader("A", time.Hour, &calls)); err != nil || v != "A" {
			t.Fatalf("v=%q err=%v", v, err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("disabled cache should load every time, calls=%d", calls.Load())
	}
	if len(mp.m) != 0 {
		t.Fatalf("disabled cache wrote to provider")
	}
	if cc.Enabled() {
		t.Fatalf("Enabled() = true")
	}
}

func TestCancelledLeaderDoesNotAbortSharedLoad(t *testing.T) {
	clk := newFakeClock()
	cc := newTestCache(t, newMemProvider(), clk, nil)

	var calls atomic.Int32
	var loaderCtxErr atomic.Value
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (string, time.Duration, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		loaderCtxErr.Store(fmt.Sprint(ctx.Err()))
		return "A", time.Hour, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cc.GetOrLoad(leaderCtx, "k", load)
		leaderErr <- err
	}()
	<-started
	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader err=%v want context.Canceled", err)
	}

	follower := make(chan string, 1)
	go func() {
		v, _ := cc.GetOrLoad(context.Background(), "k", load)
		follower <- v
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if v := <-follower; v != "A" {
		t.Fatalf("follower got %q want A", v)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	if got := loaderCtxErr.Load(); got != "<nil>" {
		t.Fatalf("loader ctx err=%v, want not cancelled", got)
	}
	if v, ok, _ := cc.Get(context.Background(), "k"); !ok || v != "A" {
		t.Fatalf("Get after shared load v=%q ok=%v", v, ok)
	}
}

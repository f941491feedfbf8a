package formcache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/formcache/codec"
	gen "github.com/unkn0wn-root/formcache/genstore"
	"github.com/unkn0wn-root/formcache/internal/wire"
	pr "github.com/unkn0wn-root/formcache/provider"
)

type cache[V any] struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[V]
	log            Logger
	hooks          Hooks
	enabled        bool
	defaultTTL     time.Duration
	sweepInterval  time.Duration
	genRetention   time.Duration
	computeSetCost SetCostFunc
	gen            gen.GenStore
	now            func() time.Time
	sf             *singleflight.Group // nil => every miss loads on its own
}

var _ Cache[struct{}] = (*cache[struct{}])(nil)

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if opts.Codec == nil {
		return nil, ErrNoCodec
	}
	if opts.Namespace == "" {
		return nil, ErrNoNamespace
	}

	c := &cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	c.sweepInterval = coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
	c.genRetention = coalesce[time.Duration](opts.GenRetention, defaultGenRetention)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(_ string, _ []byte) int64 { return 1 }
	}

	if opts.Clock != nil {
		c.now = opts.Clock
	} else {
		c.now = time.Now
	}

	if !opts.DisableSingleFlight {
		c.sf = new(singleflight.Group)
	}

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		c.gen = gen.NewLocalGenStore(c.sweepInterval, c.genRetention)
	}

	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if c.gen != nil {
		_ = c.gen.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	k := c.singleKey(key)
	e, ok, err := c.read(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.selfHeal(ctx, k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[V]) Expiry(ctx context.Context, key string) (time.Time, bool, error) {
	if !c.enabled {
		return time.Time{}, false, nil
	}
	e, ok, err := c.read(ctx, c.singleKey(key))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.ExpiresAt, true, nil
}

// read fetches and validates the framed entry at storageKey. Corrupt, expired
// and stale entries are deleted and reported as a miss.
func (c *cache[V]) read(ctx context.Context, storageKey string) (wire.Entry, bool, error) {
	raw, ok, err := c.provider.Get(ctx, storageKey)
	if err != nil {
		c.hooks.ProviderError("get", storageKey, err)
		return wire.Entry{}, false, err
	}
	if !ok {
		return wire.Entry{}, false, nil
	}
	e, err := wire.DecodeSingle(raw)
	if err != nil {
		c.selfHeal(ctx, storageKey, "corrupt")
		return wire.Entry{}, false, nil
	}
	if e.Expired(c.now()) {
		c.selfHeal(ctx, storageKey, "expired")
		return wire.Entry{}, false, nil
	}
	if e.Gen != c.snapshotGen(storageKey) {
		c.selfHeal(ctx, storageKey, "gen_mismatch")
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

func (c *cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	k := c.singleKey(key)
	if c.snapshotGen(k) != observedGen {
		// generation moved; skip stale write
		c.log.Debug("SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observedGen})
		return nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	wireb := wire.EncodeSingle(observedGen, c.now().Add(ttl), payload)
	ok, err := c.provider.Set(ctx, k, wireb, c.computeSetCost(k, wireb), ttl)
	if err != nil {
		c.hooks.ProviderError("set", k, err)
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(k)
		c.log.Debug("SetWithGen rejected by provider (pressure)", Fields{"key": key})
	}
	return nil
}

func (c *cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.singleKey(key)
	newGen, bumpErr := c.gen.Bump(ctx, k)
	if bumpErr != nil {
		c.hooks.GenBumpError(k, bumpErr)
	}
	delErr := c.provider.Del(ctx, k)
	if delErr != nil {
		c.hooks.ProviderError("del", k, delErr)
	}
	if bumpErr != nil || delErr != nil {
		if bumpErr != nil && delErr != nil {
			c.hooks.InvalidateOutage(key, bumpErr, delErr)
		}
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	c.log.Debug("invalidated key (bumped gen + cleared single)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (c *cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if !c.enabled {
		v, _, err := load(ctx)
		return v, err
	}

	v, ok, err := c.Get(ctx, key)
	if ok {
		return v, nil
	}
	if err != nil {
		// provider outage degrades to a miss
		c.log.Warn("cache read failed; loading", Fields{"key": key, "err": err})
	}

	k := c.singleKey(key)
	if c.sf == nil {
		v, err := c.load(ctx, key, load)
		if err == nil {
			c.hooks.Loaded(k, false)
		}
		return v, err
	}

	// The shared load outlives any one caller: a caller that goes away
	// returns its ctx error, the others still get the result.
	ch := c.sf.DoChan(k, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key, load)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		c.hooks.Loaded(k, res.Shared)
		v, _ = res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// load runs the loader and stores its result under the generation observed
// before the loader started, so an Invalidate racing the load wins.
func (c *cache[V]) load(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	obs := c.snapshotGen(c.singleKey(key))
	v, ttl, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if err := c.SetWithGen(ctx, key, v, obs, ttl); err != nil {
		// the caller still gets the fresh value
		c.log.Warn("storing loaded value failed", Fields{"key": key, "err": err})
	}
	return v, nil
}

func (c *cache[V]) SnapshotGen(key string) uint64 {
	return c.snapshotGen(c.singleKey(key))
}

func (c *cache[V]) snapshotGen(storageKey string) uint64 {
	g, err := c.gen.Snapshot(context.Background(), storageKey)
	if err != nil {
		// Conservative: treat as 0 so CAS writes will skip; reads will self-heal
		c.hooks.GenSnapshotError(storageKey, err)
		c.log.Warn("gen snapshot error", Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (c *cache[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	if err := c.provider.Del(ctx, storageKey); err != nil {
		c.hooks.ProviderError("del", storageKey, err)
	}
	c.hooks.SelfHealSingle(storageKey, reason)
}

func (c *cache[V]) singleKey(userKey string) string {
	// isolate by namespace
	return "single:" + c.ns + ":" + userKey
}

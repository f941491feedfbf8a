package formcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/formcache/codec"
	gen "github.com/unkn0wn-root/formcache/genstore"
	pr "github.com/unkn0wn-root/formcache/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// LoadFunc computes the value for a missing or expired key. The returned ttl
// is the lifetime of the stored entry; ttl <= 0 falls back to Options.DefaultTTL.
// A non-nil error is returned to the caller of GetOrLoad and nothing is stored.
type LoadFunc[V any] func(ctx context.Context) (v V, ttl time.Duration, err error)

// Cache is the high-level, provider-agnostic cache API with CAS safety via per-key generations.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	Get(ctx context.Context, key string) (v V, ok bool, err error)
	SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error

	// GetOrLoad returns the cached value for key, or runs load on miss/expiry
	// and stores its result with the TTL load returned. With single-flight the
	// load runs detached from ctx; a caller whose ctx ends first gets ctx.Err().
	GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error)

	// Expiry reports when the current entry for key expires.
	// ok is false on miss; a zero time with ok=true means no expiry.
	Expiry(ctx context.Context, key string) (at time.Time, ok bool, err error)

	// Generation snapshot (for CAS)
	SnapshotGen(key string) uint64
}

// Options tune the behavior of the cache.
// Namespace, Provider and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "perscom", "forms"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger          Logger           // if nil, NopLogger is used
	Hooks           Hooks            // if nil, NopHooks is used
	DefaultTTL      time.Duration    // 0 => 10m
	CleanupInterval time.Duration    // 0 => 1h
	GenRetention    time.Duration    // 0 => 30d
	Disabled        bool             // default false (enabled)
	ComputeSetCost  SetCostFunc      // default 1
	GenStore        gen.GenStore     // nil => LocalGenStore (in-process)
	Clock           func() time.Time // nil => time.Now

	// DisableSingleFlight lets every concurrent miss run its own loader
	// (last writer wins). By default concurrent misses on a key share one load.
	DisableSingleFlight bool
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}

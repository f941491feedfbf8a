// Package formcache implements a provider-agnostic loading cache with
// compare-and-swap (CAS) safety via per-key generations. Reads never return
// expired or stale values; a miss can be filled through GetOrLoad, whose
// loader decides the TTL of the value it produced.
//
// Components:
//   - Provider: byte store with TTL (e.g. Ristretto, BigCache, Redis, Bolt).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - GenStore: generation counter per logical key. Local (in-process) by default,
//     optional Redis implementation for multi-replica / restart persistence.
//
// Every entry carries its absolute expiry in its frame, so stores without
// per-entry TTL (BigCache) still expire on time.
//
// Keys:
//
//	single:<ns>:<key>  - single entries
//
// Loading pattern:
//
//	v, err := cache.GetOrLoad(ctx, "forms", func(ctx context.Context) (Forms, time.Duration, error) {
//	    f, err := api.ListForms(ctx)
//	    return f, time.Hour, err
//	})
//
// Concurrent misses on the same key share one loader run unless
// Options.DisableSingleFlight is set. An Invalidate that lands while a
// loader is running wins: the loader's result is returned but not stored.
package formcache

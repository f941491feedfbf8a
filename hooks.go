package formcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "expired", "gen_mismatch", "value_decode"}
	SelfHealSingle(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// Provider Get/Set/Del failed. op ∈ {"get", "set", "del"}.
	ProviderError(op, storageKey string, err error)

	// GenStore errors (snapshot or bump).
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during Invalidate (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)

	// GetOrLoad served a freshly loaded value. shared is true when the
	// load was collapsed with other concurrent misses on the same key.
	Loaded(storageKey string, shared bool)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHealSingle(string, string)         {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) ProviderError(string, string, error)   {}
func (NopHooks) GenSnapshotError(string, error)        {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) Loaded(string, bool)                   {}

package directory

import (
	"context"
	"time"

	"github.com/unkn0wn-root/formcache"
)

const (
	// CacheKey identifies the one cached form list per namespace.
	CacheKey = "perscom.admin.forms"

	// DefaultLimit is passed to Source.ListForms. Directories with more
	// forms are truncated by the source; see source/perscom FollowPages.
	DefaultLimit = 999

	SuccessTTL = time.Hour
	FailureTTL = 15 * time.Minute
)

type Options struct {
	// Required
	Source Source
	Cache  formcache.Cache[FormDirectory]

	Key        string        // "" => CacheKey
	Limit      int           // 0 => DefaultLimit
	SuccessTTL time.Duration // 0 => 1h
	FailureTTL time.Duration // 0 => 15m
	Logger     formcache.Logger
}

// Directory is the cached view of the remote form list.
// It is safe for concurrent use.
type Directory struct {
	source     Source
	cache      formcache.Cache[FormDirectory]
	key        string
	limit      int
	successTTL time.Duration
	failureTTL time.Duration
	log        formcache.Logger
}

func New(opts Options) (*Directory, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Cache == nil {
		return nil, ErrNoCache
	}
	d := &Directory{
		source:     opts.Source,
		cache:      opts.Cache,
		key:        opts.Key,
		limit:      opts.Limit,
		successTTL: opts.SuccessTTL,
		failureTTL: opts.FailureTTL,
		log:        opts.Logger,
	}
	if d.key == "" {
		d.key = CacheKey
	}
	if d.limit <= 0 {
		d.limit = DefaultLimit
	}
	if d.successTTL <= 0 {
		d.successTTL = SuccessTTL
	}
	if d.failureTTL <= 0 {
		d.failureTTL = FailureTTL
	}
	if d.log == nil {
		d.log = formcache.NopLogger{}
	}
	return d, nil
}

// Forms returns the current directory, fetching it on a cache miss.
// It never fails: when the source errors, an empty directory is returned
// and cached for FailureTTL.
func (d *Directory) Forms(ctx context.Context) FormDirectory {
	forms, err := d.cache.GetOrLoad(ctx, d.key, d.load)
	if err != nil {
		if ctx.Err() != nil {
			// caller gave up; nothing was cached on its behalf
			d.log.Debug("form directory request abandoned", formcache.Fields{"key": d.key, "err": err})
		} else {
			d.log.Error("form directory unavailable", formcache.Fields{"key": d.key, "err": err})
		}
		return FormDirectory{}
	}
	return forms
}

// Refresh drops the cached directory so the next Forms call refetches.
// A fetch already in flight will not overwrite the refresh.
func (d *Directory) Refresh(ctx context.Context) error {
	return d.cache.Invalidate(ctx, d.key)
}

// Expiry reports when the cached directory expires. ok is false when
// nothing is cached or the cache cannot be read.
func (d *Directory) Expiry(ctx context.Context) (time.Time, bool) {
	at, ok, err := d.cache.Expiry(ctx, d.key)
	if err != nil {
		d.log.Warn("form directory expiry unavailable", formcache.Fields{"key": d.key, "err": err})
		return time.Time{}, false
	}
	return at, ok
}

func (d *Directory) load(ctx context.Context) (FormDirectory, time.Duration, error) {
	res := d.fetch(ctx)
	if res.err != nil && ctx.Err() != nil {
		// a cancelled caller is not a remote failure; store nothing
		return nil, 0, ctx.Err()
	}
	if res.err != nil {
		d.log.Debug("form fetch failed; caching empty directory", formcache.Fields{
			"key":      d.key,
			"err":      res.err,
			"retry_in": d.failureTTL.String(),
		})
	}
	forms, ttl := res.entry(d.successTTL, d.failureTTL)
	return forms, ttl, nil
}

// fetchResult is either a directory or the failure that prevented one.
type fetchResult struct {
	forms FormDirectory
	err   error
}

func (d *Directory) fetch(ctx context.Context) fetchResult {
	forms, err := d.source.ListForms(ctx, d.limit)
	if err != nil {
		return fetchResult{err: &FetchError{Limit: d.limit, Err: err}}
	}
	return fetchResult{forms: NewFormDirectory(forms)}
}

// entry maps the result to what gets cached and for how long.
func (r fetchResult) entry(successTTL, failureTTL time.Duration) (FormDirectory, time.Duration) {
	if r.err != nil {
		return FormDirectory{}, failureTTL
	}
	return r.forms, successTTL
}

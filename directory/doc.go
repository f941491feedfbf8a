// Package directory serves the list of PERSCOM submission forms to the admin
// menu, fetched from a remote Source and memoized in a formcache.Cache.
//
// Forms never fails. A successful fetch is cached for SuccessTTL (1h); a
// failed fetch caches an empty directory for FailureTTL (15m) so the menu
// keeps rendering and the remote is retried soon after.
//
//	c, _ := formcache.New[directory.FormDirectory](formcache.Options[directory.FormDirectory]{
//	    Namespace: "perscom",
//	    Provider:  provider,
//	    Codec:     codec.JSON[directory.FormDirectory]{},
//	})
//	dir, _ := directory.New(directory.Options{Source: client, Cache: c})
//	for id, name := range dir.Forms(ctx).All() {
//	    // one menu entry per form
//	}
package directory

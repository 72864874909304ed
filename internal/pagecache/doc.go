// Package pagecache provides a memory-bounded store of rendered page bitmaps
// with least-recently-used eviction and exact byte accounting.
//
// Entries are addressed by Key (document, page, quantized scale). A miss
// invokes the caller's render function, stores the result, and evicts the
// least recently used entries until the tracked size fits the budget again.
// The entry just inserted is never evicted to make room for itself, so a
// single bitmap larger than the budget is still cached.
//
// Bitmaps returned from the cache are shared read-only handles: callers
// must not modify their pixels.
//
// # Invalidation
//
// Remove, ClearDocument and ClearAll advance the cache generation. A render
// that was already running when entries were dropped still returns its
// bitmap to its caller, but the bitmap is not stored, so content that was
// explicitly discarded cannot reappear from an in-flight render.
//
// # Basic Usage
//
//	cache := pagecache.New(256<<20, pagecache.WithLogger(logger))
//
//	key := pagecache.NewKey(doc.ID(), page, zoom)
//	bitmap, err := cache.GetOrRender(ctx, key, func(ctx context.Context) (*image.RGBA, error) {
//		return doc.RenderPage(ctx, page, w, h)
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Concurrent misses for one key
// share a single render unless single-flight is disabled.
package pagecache

package pagecache

import (
	"container/list"
	"context"
	"image"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/pageview/internal/logging"
)

// DefaultBudget is the default byte budget (256 MiB).
const DefaultBudget int64 = 256 << 20

// RenderFunc produces the bitmap for a cache miss.
type RenderFunc func(ctx context.Context) (*image.RGBA, error)

// SizeListener is called with the tracked byte size after it changes.
type SizeListener func(bytes int64)

// entry is one cached bitmap. Owned exclusively by the cache.
type entry struct {
	key    Key
	bitmap *image.RGBA
	size   int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) {
		c.logger = logging.OrNull(l).WithComponent("pagecache")
	}
}

// WithSizeListener sets the size change listener.
func WithSizeListener(fn SizeListener) Option {
	return func(c *Cache) {
		c.onSize = fn
	}
}

// WithSingleFlight enables or disables de-duplication of concurrent renders
// for the same key. Enabled by default.
func WithSingleFlight(enable bool) Option {
	return func(c *Cache) {
		c.singleFlight = enable
	}
}

// WithStrictInvariants makes Verify panic on an accounting mismatch instead
// of repairing it. Intended for debug builds and tests.
func WithStrictInvariants(enable bool) Option {
	return func(c *Cache) {
		c.strict = enable
	}
}

// Cache is a byte-bounded LRU cache of page bitmaps.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	lru     *list.List // front is most recently used

	size   atomic.Int64
	budget atomic.Int64

	// generation advances whenever entries are dropped on request, so a
	// render that started before the drop does not store its result.
	generation uint64

	flight       singleflight.Group
	singleFlight bool
	strict       bool

	logger *logging.Logger
	onSize SizeListener

	// Stats (atomic for thread-safe access without holding locks)
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	shared    atomic.Uint64
	failures  atomic.Uint64
}

// New creates a cache with the given byte budget. A non-positive budget
// uses DefaultBudget.
func New(budget int64, opts ...Option) *Cache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	c := &Cache{
		entries:      make(map[Key]*list.Element),
		lru:          list.New(),
		singleFlight: true,
		logger:       logging.NullLogger,
	}
	c.budget.Store(budget)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRender returns the bitmap for key, rendering and storing it on a miss.
// The key's scale is quantized first, so hand-built keys behave like ones
// from NewKey.
//
// A hit returns immediately without calling render. A failed render
// propagates its error and caches nothing. A render still running when
// Remove, ClearDocument or ClearAll drops entries returns its bitmap to the
// caller but does not store it. When single-flight is enabled, concurrent
// misses for the same key share one render call; the callers then share the
// first caller's outcome, including its cancellation.
func (c *Cache) GetOrRender(ctx context.Context, key Key, render RenderFunc) (*image.RGBA, error) {
	key = key.quantized()
	if b, ok := c.Get(key); ok {
		return b, nil
	}
	c.misses.Add(1)

	gen := c.Generation()
	if !c.singleFlight {
		return c.renderAndStore(ctx, key, gen, render)
	}

	flightKey := key.String() + "/" + strconv.FormatUint(gen, 10)
	v, err, shared := c.flight.Do(flightKey, func() (any, error) {
		// Another flight may have stored the key between our miss and now.
		if b, ok := c.peek(key); ok {
			return b, nil
		}
		return c.renderAndStore(ctx, key, gen, render)
	})
	if shared {
		c.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.(*image.RGBA), nil
}

// Get returns the cached bitmap for key and marks it most recently used.
func (c *Cache) Get(key Key) (*image.RGBA, bool) {
	key = key.quantized()
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry).bitmap, true
}

// Contains reports whether key is cached without affecting recency.
func (c *Cache) Contains(key Key) bool {
	_, ok := c.peek(key)
	return ok
}

// Put stores a bitmap directly, replacing any existing entry for key.
func (c *Cache) Put(key Key, b *image.RGBA) error {
	if ByteSize(b) == 0 {
		return ErrEmptyBitmap
	}
	c.store(key.quantized(), b, 0, false)
	return nil
}

// Remove deletes key. Returns true if it was present.
func (c *Cache) Remove(key Key) bool {
	key = key.quantized()
	c.mu.Lock()
	c.generation++
	elem, ok := c.entries[key]
	if ok {
		c.removeElement(elem)
	}
	c.mu.Unlock()

	if ok {
		c.notifySize()
	}
	return ok
}

// ClearDocument removes every entry belonging to documentID and returns the
// number removed.
func (c *Cache) ClearDocument(documentID string) int {
	c.mu.Lock()
	c.generation++
	removed := 0
	for key, elem := range c.entries {
		if key.DocumentID == documentID {
			c.removeElement(elem)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("cleared %d entries for document %s", removed, documentID)
		c.notifySize()
	}
	return removed
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.generation++
	c.entries = make(map[Key]*list.Element)
	c.lru.Init()
	c.size.Store(0)
	c.mu.Unlock()

	c.notifySize()
}

// Generation returns a counter that advances every time Remove,
// ClearDocument or ClearAll runs.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// ApproximateSize returns the tracked byte size of all entries.
func (c *Cache) ApproximateSize() int64 {
	return c.size.Load()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Budget returns the byte budget.
func (c *Cache) Budget() int64 {
	return c.budget.Load()
}

// SetBudget changes the byte budget, evicting immediately if the cache no
// longer fits. Non-positive values are ignored.
func (c *Cache) SetBudget(budget int64) {
	if budget <= 0 {
		return
	}
	c.budget.Store(budget)

	c.mu.Lock()
	evicted := c.evictLocked(nil)
	c.mu.Unlock()

	c.logger.Info("budget set to %s", humanize.IBytes(uint64(budget)))
	if evicted > 0 {
		c.notifySize()
	}
}

// Keys returns the cached keys from most to least recently used.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry).key)
	}
	return keys
}

// Verify recomputes the byte total from the entries and compares it with
// the tracked counter. On mismatch the counter is repaired and an
// *InvariantError is returned, or, in strict mode, Verify panics.
func (c *Cache) Verify() error {
	c.mu.Lock()
	var actual int64
	for e := c.lru.Front(); e != nil; e = e.Next() {
		actual += e.Value.(*entry).size
	}
	tracked := c.size.Load()
	if tracked == actual {
		c.mu.Unlock()
		return nil
	}
	c.size.Store(actual)
	c.mu.Unlock()

	err := &InvariantError{Tracked: tracked, Actual: actual}
	if c.strict {
		panic(err)
	}
	c.logger.Error("%v; counter repaired", err)
	c.notifySize()
	return err
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Entries:       entries,
		Bytes:         c.size.Load(),
		Budget:        c.budget.Load(),
		Hits:          hits,
		Misses:        misses,
		Evictions:     c.evictions.Load(),
		SharedRenders: c.shared.Load(),
		FailedRenders: c.failures.Load(),
		HitRate:       hitRate,
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries       int
	Bytes         int64
	Budget        int64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	SharedRenders uint64
	FailedRenders uint64
	HitRate       float64
}

// renderAndStore runs render outside the lock and stores a valid result
// unless entries were dropped since generation gen.
func (c *Cache) renderAndStore(ctx context.Context, key Key, gen uint64, render RenderFunc) (*image.RGBA, error) {
	b, err := render(ctx)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	if ByteSize(b) == 0 {
		c.failures.Add(1)
		return nil, ErrEmptyBitmap
	}
	if !c.store(key, b, gen, true) {
		c.logger.Debug("dropped %s: entries cleared during render", key)
	}
	return b, nil
}

// store inserts or replaces key and evicts down to the budget. When
// checkGen is set the bitmap is stored only if the generation is still gen.
// Reports whether the bitmap was stored.
func (c *Cache) store(key Key, b *image.RGBA, gen uint64, checkGen bool) bool {
	size := ByteSize(b)

	c.mu.Lock()
	if checkGen && c.generation != gen {
		c.mu.Unlock()
		return false
	}
	if elem, ok := c.entries[key]; ok {
		// Last write wins.
		c.removeElement(elem)
	}
	elem := c.lru.PushFront(&entry{key: key, bitmap: b, size: size})
	c.entries[key] = elem
	c.size.Add(size)
	c.evictLocked(elem)
	c.mu.Unlock()

	c.notifySize()
	return true
}

// evictLocked removes least recently used entries until the tracked size
// fits the budget. keep is never evicted. Returns the number evicted.
// Must be called with c.mu held.
func (c *Cache) evictLocked(keep *list.Element) int {
	budget := c.budget.Load()
	evicted := 0
	for c.size.Load() > budget {
		victim := c.lru.Back()
		if victim == nil || victim == keep {
			break
		}
		ent := victim.Value.(*entry)
		c.removeElement(victim)
		evicted++
		c.logger.Debug("evicted %s (%s)", ent.key, humanize.IBytes(uint64(ent.size)))
	}
	if evicted > 0 {
		c.evictions.Add(uint64(evicted))
	}
	return evicted
}

// removeElement unlinks an entry and releases its bytes.
// Must be called with c.mu held.
func (c *Cache) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, ent.key)
	c.size.Add(-ent.size)
}

// peek looks up key without touching recency or stats.
func (c *Cache) peek(key Key) (*image.RGBA, bool) {
	key = key.quantized()
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*entry).bitmap, true
}

func (c *Cache) notifySize() {
	if c.onSize != nil {
		c.onSize(c.size.Load())
	}
}

package pagecache

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// bitmap returns a w×h bitmap (w*h*4 bytes).
func bitmap(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// renderOf returns a render function producing a w×h bitmap and counting calls.
func renderOf(w, h int, calls *atomic.Int32) RenderFunc {
	return func(context.Context) (*image.RGBA, error) {
		if calls != nil {
			calls.Add(1)
		}
		return bitmap(w, h), nil
	}
}

func TestNewKeyQuantizesScale(t *testing.T) {
	a := NewKey("doc", 1, 1.5)
	b := NewKey("doc", 1, 1.5000000001)
	if a != b {
		t.Errorf("keys differing by float noise should be equal: %v vs %v", a, b)
	}
	if NewKey("doc", 1, 1.501) == a {
		t.Error("keys a quantum apart should differ")
	}
	if got := a.String(); got != "doc#1@1.5" {
		t.Errorf("String() = %q", got)
	}
}

func TestByteSize(t *testing.T) {
	if got := ByteSize(bitmap(10, 20)); got != 800 {
		t.Errorf("ByteSize = %d, want 800", got)
	}
	if got := ByteSize(nil); got != 0 {
		t.Errorf("ByteSize(nil) = %d", got)
	}
}

func TestGetOrRenderHitDoesNotRender(t *testing.T) {
	c := New(1 << 20)
	ctx := context.Background()
	key := NewKey("doc", 0, 1)
	var calls atomic.Int32

	first, err := c.GetOrRender(ctx, key, renderOf(10, 10, &calls))
	if err != nil {
		t.Fatalf("GetOrRender: %v", err)
	}
	second, err := c.GetOrRender(ctx, key, renderOf(10, 10, &calls))
	if err != nil {
		t.Fatalf("GetOrRender: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("render calls = %d, want 1", calls.Load())
	}
	if first != second {
		t.Error("hit should return the cached bitmap")
	}
	if c.ApproximateSize() != 400 {
		t.Errorf("size = %d, want 400", c.ApproximateSize())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

func TestGetOrRenderFailureCachesNothing(t *testing.T) {
	c := New(1 << 20)
	key := NewKey("doc", 3, 1)
	boom := errors.New("boom")

	_, err := c.GetOrRender(context.Background(), key, func(context.Context) (*image.RGBA, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Contains(key) || c.Len() != 0 || c.ApproximateSize() != 0 {
		t.Error("failed render must not leave an entry")
	}

	_, err = c.GetOrRender(context.Background(), key, func(context.Context) (*image.RGBA, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrEmptyBitmap) {
		t.Errorf("nil bitmap err = %v, want ErrEmptyBitmap", err)
	}
	if c.Stats().FailedRenders != 2 {
		t.Errorf("FailedRenders = %d", c.Stats().FailedRenders)
	}
}

func TestBudgetNeverExceededAfterCall(t *testing.T) {
	const budget = 10 * 400
	c := New(budget)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		w := 5 + i%10
		if _, err := c.GetOrRender(ctx, NewKey("doc", i, 1), renderOf(w, 10, nil)); err != nil {
			t.Fatalf("GetOrRender(%d): %v", i, err)
		}
		if c.ApproximateSize() > budget {
			t.Fatalf("after call %d size %d exceeds budget %d", i, c.ApproximateSize(), budget)
		}
		if err := c.Verify(); err != nil {
			t.Fatalf("Verify after call %d: %v", i, err)
		}
	}
	if c.Stats().Evictions == 0 {
		t.Error("expected evictions")
	}
}

func TestEvictionIsLRU(t *testing.T) {
	// Room for exactly two 400-byte entries.
	c := New(800)
	ctx := context.Background()
	a := NewKey("doc", 0, 1)
	b := NewKey("doc", 1, 1)
	n := NewKey("doc", 2, 1)

	mustRender(t, c, a)
	mustRender(t, c, b)

	// Touch A so B becomes least recently used.
	if _, ok := c.Get(a); !ok {
		t.Fatal("A missing")
	}

	if _, err := c.GetOrRender(ctx, n, renderOf(10, 10, nil)); err != nil {
		t.Fatal(err)
	}

	if c.Contains(b) {
		t.Error("B was least recently used and should be evicted")
	}
	if !c.Contains(a) || !c.Contains(n) {
		t.Error("A and the new entry should remain")
	}

	keys := c.Keys()
	if len(keys) != 2 || keys[0] != n || keys[1] != a {
		t.Errorf("recency order = %v, want [new, A]", keys)
	}
}

func TestEvictionOrderWithoutTouch(t *testing.T) {
	c := New(800)
	a := NewKey("doc", 0, 1)
	b := NewKey("doc", 1, 1)

	mustRender(t, c, a)
	mustRender(t, c, b)
	mustRender(t, c, NewKey("doc", 2, 1))

	if c.Contains(a) {
		t.Error("A was inserted first and never touched; it should go first")
	}
	if !c.Contains(b) {
		t.Error("B should survive a single eviction")
	}
}

func TestOversizedEntryIsKept(t *testing.T) {
	c := New(100)
	key := NewKey("doc", 0, 4)

	mustRender(t, c, NewKey("doc", 1, 1))
	if _, err := c.GetOrRender(context.Background(), key, renderOf(20, 20, nil)); err != nil {
		t.Fatal(err)
	}

	if !c.Contains(key) {
		t.Error("an entry is never evicted to satisfy itself")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 (everything else evicted)", c.Len())
	}
	if c.ApproximateSize() != 1600 {
		t.Errorf("size = %d, want 1600", c.ApproximateSize())
	}
}

func TestClearDocumentAndClearAll(t *testing.T) {
	c := New(1 << 20)
	mustRender(t, c, NewKey("a", 0, 1))
	mustRender(t, c, NewKey("a", 1, 1))
	mustRender(t, c, NewKey("b", 0, 1))

	if removed := c.ClearDocument("a"); removed != 2 {
		t.Errorf("ClearDocument removed %d, want 2", removed)
	}
	if c.Len() != 1 || c.ApproximateSize() != 400 {
		t.Errorf("after ClearDocument: len=%d size=%d", c.Len(), c.ApproximateSize())
	}

	c.ClearAll()
	if c.ApproximateSize() != 0 {
		t.Errorf("ApproximateSize after ClearAll = %d, want 0", c.ApproximateSize())
	}
	if c.Len() != 0 {
		t.Errorf("Len after ClearAll = %d", c.Len())
	}
}

func TestScaleChangeIsDistinctKey(t *testing.T) {
	c := New(1 << 20)
	var calls atomic.Int32

	for _, scale := range []float64{1, 1.25, 1} {
		if _, err := c.GetOrRender(context.Background(), NewKey("doc", 0, scale), renderOf(4, 4, &calls)); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("render calls = %d, want 2", calls.Load())
	}
}

func TestSetBudgetEvicts(t *testing.T) {
	c := New(1 << 20)
	for i := 0; i < 5; i++ {
		mustRender(t, c, NewKey("doc", i, 1))
	}

	c.SetBudget(800)

	if c.ApproximateSize() > 800 {
		t.Errorf("size %d exceeds new budget", c.ApproximateSize())
	}
	if c.Budget() != 800 {
		t.Errorf("Budget = %d", c.Budget())
	}
	if !c.Contains(NewKey("doc", 4, 1)) {
		t.Error("most recent entry should survive shrinking")
	}
}

func TestSizeListener(t *testing.T) {
	var last atomic.Int64
	var calls atomic.Int32
	c := New(1<<20, WithSizeListener(func(n int64) {
		last.Store(n)
		calls.Add(1)
	}))

	mustRender(t, c, NewKey("doc", 0, 1))
	if last.Load() != 400 {
		t.Errorf("listener saw %d, want 400", last.Load())
	}
	c.ClearAll()
	if last.Load() != 0 {
		t.Errorf("listener saw %d after ClearAll", last.Load())
	}
	if calls.Load() != 2 {
		t.Errorf("listener calls = %d, want 2", calls.Load())
	}
}

func TestVerifyRepairsCounter(t *testing.T) {
	c := New(1 << 20)
	mustRender(t, c, NewKey("doc", 0, 1))

	c.size.Add(123)

	err := c.Verify()
	var inv *InvariantError
	if !errors.As(err, &inv) || !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Verify = %v, want InvariantError", err)
	}
	if inv.Tracked != 523 || inv.Actual != 400 {
		t.Errorf("InvariantError = %+v", inv)
	}
	if c.ApproximateSize() != 400 {
		t.Errorf("size after repair = %d", c.ApproximateSize())
	}
	if err := c.Verify(); err != nil {
		t.Errorf("second Verify = %v", err)
	}
}

func TestVerifyStrictPanics(t *testing.T) {
	c := New(1<<20, WithStrictInvariants(true))
	mustRender(t, c, NewKey("doc", 0, 1))
	c.size.Add(1)

	defer func() {
		if recover() == nil {
			t.Error("strict Verify should panic on mismatch")
		}
	}()
	_ = c.Verify()
}

func TestConcurrentSameKeyRendersOnce(t *testing.T) {
	c := New(1 << 20)
	key := NewKey("doc", 7, 1)

	var calls atomic.Int32
	release := make(chan struct{})
	render := func(context.Context) (*image.RGBA, error) {
		calls.Add(1)
		<-release
		return bitmap(8, 8), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*image.RGBA, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := c.GetOrRender(context.Background(), key, render)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = b
		}(i)
	}

	// Let every caller reach the flight before releasing the render.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("render calls = %d, want 1", calls.Load())
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different bitmap", i)
		}
	}
	if c.ApproximateSize() != 256 {
		t.Errorf("size = %d, want 256", c.ApproximateSize())
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	c := New(64 * 400)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := NewKey("doc", (g*100+i)%150, 1)
				if _, err := c.GetOrRender(context.Background(), key, renderOf(10, 10, nil)); err != nil {
					t.Errorf("GetOrRender: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if err := c.Verify(); err != nil {
		t.Errorf("Verify after concurrent use: %v", err)
	}
	if c.ApproximateSize() > c.Budget() {
		t.Errorf("size %d exceeds budget %d", c.ApproximateSize(), c.Budget())
	}
}

func TestWithoutSingleFlight(t *testing.T) {
	c := New(1<<20, WithSingleFlight(false))
	var calls atomic.Int32

	mustRenderWith(t, c, NewKey("doc", 0, 1), renderOf(2, 2, &calls))
	mustRenderWith(t, c, NewKey("doc", 0, 1), renderOf(2, 2, &calls))

	if calls.Load() != 1 {
		t.Errorf("render calls = %d, want 1", calls.Load())
	}
}

func mustRender(t *testing.T, c *Cache, key Key) {
	t.Helper()
	mustRenderWith(t, c, key, renderOf(10, 10, nil))
}

func mustRenderWith(t *testing.T, c *Cache, key Key, fn RenderFunc) {
	t.Helper()
	if _, err := c.GetOrRender(context.Background(), key, fn); err != nil {
		t.Fatalf("GetOrRender(%v): %v", key, err)
	}
}

func TestHandBuiltKeyIsQuantized(t *testing.T) {
	c := New(1 << 20)
	var calls atomic.Int32

	mustRender(t, c, NewKey("doc", 0, 1))
	raw := Key{DocumentID: "doc", PageIndex: 0, Scale: 1.0000001}
	if _, err := c.GetOrRender(context.Background(), raw, renderOf(10, 10, &calls)); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 0 || c.Len() != 1 {
		t.Errorf("unrounded key made a new entry: calls=%d len=%d", calls.Load(), c.Len())
	}
	if !c.Contains(raw) {
		t.Error("Contains should quantize the key")
	}
	if !c.Remove(raw) || c.Len() != 0 {
		t.Error("Remove should quantize the key")
	}
}

func TestClearDuringRenderDoesNotStore(t *testing.T) {
	tests := []struct {
		name  string
		clear func(c *Cache)
	}{
		{"ClearDocument", func(c *Cache) { c.ClearDocument("doc") }},
		{"ClearAll", func(c *Cache) { c.ClearAll() }},
		{"Remove", func(c *Cache) { c.Remove(NewKey("doc", 0, 1)) }},
	}

	for _, tt := range tests {
		for _, sf := range []bool{true, false} {
			c := New(1<<20, WithSingleFlight(sf))
			started := make(chan struct{})
			release := make(chan struct{})
			done := make(chan *image.RGBA)

			// The render ignores its context, like a rasterizer that cannot be
			// interrupted.
			go func() {
				b, _ := c.GetOrRender(context.Background(), NewKey("doc", 0, 1), func(context.Context) (*image.RGBA, error) {
					close(started)
					<-release
					return bitmap(10, 10), nil
				})
				done <- b
			}()

			<-started
			before := c.Generation()
			tt.clear(c)
			if c.Generation() == before {
				t.Errorf("%s: generation did not advance", tt.name)
			}
			close(release)

			if b := <-done; b == nil {
				t.Errorf("%s (singleflight=%v): caller should still get its bitmap", tt.name, sf)
			}
			if c.Len() != 0 || c.ApproximateSize() != 0 {
				t.Errorf("%s (singleflight=%v): stale render stored: len=%d size=%d",
					tt.name, sf, c.Len(), c.ApproximateSize())
			}

			// A render started after the clear is stored normally.
			mustRender(t, c, NewKey("doc", 0, 1))
			if c.Len() != 1 {
				t.Errorf("%s (singleflight=%v): fresh render not stored", tt.name, sf)
			}
		}
	}
}

package scheduler

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/dshills/pageview/internal/event"
	"github.com/dshills/pageview/internal/pagecache"
	"github.com/dshills/pageview/internal/textlayout"
)

// PageResult is the outcome of rendering one page in one cycle.
type PageResult struct {
	Page   int
	Zoom   float64
	Cycle  uint64
	Bitmap *image.RGBA
	Text   *textlayout.PageText

	// Err is set for a page that failed to render; Bitmap is then nil and
	// the page is shown as a placeholder.
	Err error
}

// Applier receives render results and unload decisions. ApplyPage must
// discard r if ctx is done by the time the result would become visible.
type Applier interface {
	ApplyPage(ctx context.Context, r PageResult)
	UnloadPage(page int)
}

// ViewState reports what the view currently holds.
type ViewState interface {
	Loaded() []int
	NeedsRender(page int, zoom float64) bool
}

// PageState is the view state of one page.
type PageState struct {
	Index  int
	Bitmap *image.RGBA
	Zoom   float64
	Text   *textlayout.PageText
	Err    error
}

// Failed reports whether the page is a failed-render placeholder.
func (s PageState) Failed() bool {
	return s.Err != nil
}

// PageStore holds the per-page view state.
//
// Apply and Unload are meant to run on the UI loop only. The read methods
// may be called from any goroutine; the scheduler uses them to decide what
// to render.
type PageStore struct {
	mu      sync.RWMutex
	pages   map[int]PageState
	version uint64
}

// NewPageStore creates an empty store.
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[int]PageState)}
}

// Apply replaces the state of r.Page as a unit.
func (s *PageStore) Apply(r PageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[r.Page] = PageState{
		Index:  r.Page,
		Bitmap: r.Bitmap,
		Zoom:   r.Zoom,
		Text:   r.Text,
		Err:    r.Err,
	}
	s.version++
}

// Unload drops a page. Returns true if it was loaded.
func (s *PageStore) Unload(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[page]; !ok {
		return false
	}
	delete(s.pages, page)
	s.version++
	return true
}

// Clear drops every page.
func (s *PageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[int]PageState)
	s.version++
}

// State returns the state of page.
func (s *PageStore) State(page int) (PageState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.pages[page]
	return st, ok
}

// Loaded returns the loaded page indices in ascending order.
func (s *PageStore) Loaded() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]int, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// NeedsRender reports whether page is missing, failed, or held at a zoom
// other than zoom.
func (s *PageStore) NeedsRender(page int, zoom float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.pages[page]
	if !ok || st.Failed() {
		return true
	}
	return pagecache.QuantizeScale(st.Zoom) != pagecache.QuantizeScale(zoom)
}

// Len returns the number of loaded pages.
func (s *PageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Version increments on every mutation.
func (s *PageStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// StoreApplier applies results directly to a store on the calling goroutine.
type StoreApplier struct {
	Store *PageStore
}

// ApplyPage implements Applier.
func (a StoreApplier) ApplyPage(ctx context.Context, r PageResult) {
	if ctx.Err() != nil {
		return
	}
	a.Store.Apply(r)
}

// UnloadPage implements Applier.
func (a StoreApplier) UnloadPage(page int) {
	a.Store.Unload(page)
}

// Loaded implements ViewState.
func (a StoreApplier) Loaded() []int { return a.Store.Loaded() }

// NeedsRender implements ViewState.
func (a StoreApplier) NeedsRender(page int, zoom float64) bool {
	return a.Store.NeedsRender(page, zoom)
}

// LoopApplier hands results to the UI loop. The store is only mutated from
// closures the loop runs, and each result is re-checked against its cycle
// there, so a result that was overtaken while queued is dropped.
type LoopApplier struct {
	Loop     *event.Loop
	Store    *PageStore
	Notifier *event.Notifier
}

// ApplyPage implements Applier.
func (a LoopApplier) ApplyPage(ctx context.Context, r PageResult) {
	_ = a.Loop.PostWait(ctx, func() {
		if ctx.Err() != nil {
			return
		}
		a.Store.Apply(r)
		if a.Notifier == nil {
			return
		}
		if r.Err != nil {
			a.Notifier.PublishTopic(event.TopicPageFailed, r.Page, "scheduler")
		} else {
			a.Notifier.PublishTopic(event.TopicPageApplied, r.Page, "scheduler")
		}
	})
}

// UnloadPage implements Applier.
func (a LoopApplier) UnloadPage(page int) {
	_ = a.Loop.PostWait(context.Background(), func() {
		a.Store.Unload(page)
	})
}

// Loaded implements ViewState.
func (a LoopApplier) Loaded() []int { return a.Store.Loaded() }

// NeedsRender implements ViewState.
func (a LoopApplier) NeedsRender(page int, zoom float64) bool {
	return a.Store.NeedsRender(page, zoom)
}

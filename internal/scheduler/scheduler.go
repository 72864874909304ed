package scheduler

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dshills/pageview/internal/document"
	"github.com/dshills/pageview/internal/logging"
	"github.com/dshills/pageview/internal/pagecache"
	"github.com/dshills/pageview/internal/textlayout"
)

// Defaults.
const (
	DefaultBufferPages     = 3
	DefaultUnloadThreshold = 10
	DefaultConcurrency     = 4
	DefaultDebounce        = 100 * time.Millisecond
	DefaultPageGap         = 8.0
)

// PassResult summarizes one scheduling pass.
type PassResult struct {
	Cycle     uint64
	Viewport  Viewport
	Visible   []int
	Working   []int
	Unloaded  []int
	Requested []int // pages the pass set out to render, in render order
	Rendered  int
	Failed    int
	Cancelled int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.OrNull(l).WithComponent("scheduler")
	}
}

// WithBufferPages sets how many pages before and after each visible page
// are kept materialized.
func WithBufferPages(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// WithUnloadThreshold sets the page distance beyond which pages outside the
// working set are unloaded.
func WithUnloadThreshold(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.threshold = n
		}
	}
}

// WithConcurrency sets the maximum number of concurrent renders.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDebounce sets the window in which Schedule requests coalesce.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithPageGap sets the fixed gap between pages, in pixels.
func WithPageGap(gap float64) Option {
	return func(s *Scheduler) {
		if gap >= 0 {
			s.gap = gap
		}
	}
}

// WithApplier sets where results go. If a also implements ViewState and no
// view state is set, it is used as the view state too.
func WithApplier(a Applier) Option {
	return func(s *Scheduler) {
		s.applier = a
	}
}

// WithViewState sets the view state consulted for unloading and filtering.
func WithViewState(v ViewState) Option {
	return func(s *Scheduler) {
		s.view = v
	}
}

// WithDocumentID overrides the document id used in cache keys.
func WithDocumentID(id string) Option {
	return func(s *Scheduler) {
		s.docID = id
	}
}

// WithPassHook sets a function called after every pass.
func WithPassHook(fn func(PassResult)) Option {
	return func(s *Scheduler) {
		s.onPass = fn
	}
}

// Scheduler drives page rendering for one document.
type Scheduler struct {
	cache  *pagecache.Cache
	source document.Source
	docID  string

	applier Applier
	view    ViewState
	logger  *logging.Logger
	onPass  func(PassResult)

	buffer      int
	threshold   int
	concurrency int
	debounce    time.Duration
	gap         float64

	sem *semaphore.Weighted

	// passMu serializes passes.
	passMu sync.Mutex

	mu          sync.Mutex
	pending     *Viewport
	running     bool
	closed      bool
	timer       *time.Timer
	cycle       uint64
	cancelCycle context.CancelFunc

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// Stats
	passes    atomic.Uint64
	requests  atomic.Uint64
	coalesced atomic.Uint64
	rendered  atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	unloaded  atomic.Uint64
}

// New creates a scheduler that renders pages of source into cache.
//
// Without WithApplier the scheduler applies results directly to a private
// PageStore, reachable through Store.
func New(cache *pagecache.Cache, source document.Source, opts ...Option) *Scheduler {
	s := &Scheduler{
		cache:       cache,
		source:      source,
		docID:       source.ID(),
		logger:      logging.NullLogger,
		buffer:      DefaultBufferPages,
		threshold:   DefaultUnloadThreshold,
		concurrency: DefaultConcurrency,
		debounce:    DefaultDebounce,
		gap:         DefaultPageGap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.applier == nil {
		s.applier = StoreApplier{Store: NewPageStore()}
	}
	if s.view == nil {
		if v, ok := s.applier.(ViewState); ok {
			s.view = v
		} else {
			s.view = NewPageStore()
		}
	}

	s.sem = semaphore.NewWeighted(int64(s.concurrency))
	s.ctx, s.stop = context.WithCancel(context.Background())
	return s
}

// Store returns the page store when the scheduler applies results to one
// directly, or nil otherwise.
func (s *Scheduler) Store() *PageStore {
	switch a := s.applier.(type) {
	case StoreApplier:
		return a.Store
	case LoopApplier:
		return a.Store
	default:
		return nil
	}
}

// PageGap returns the gap between pages.
func (s *Scheduler) PageGap() float64 {
	return s.gap
}

// Schedule requests a pass for vp after the debounce window. Requests made
// within the window replace each other.
func (s *Scheduler) Schedule(vp Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.requests.Add(1)
	s.pending = &vp

	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.fire)
	} else {
		s.timer.Reset(s.debounce)
	}
}

// fire runs when the debounce window closes.
func (s *Scheduler) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pending == nil {
		return
	}
	if s.running {
		// The running pass is stale; stop its cycle and let the driver pick up
		// the pending viewport when it returns.
		s.coalesced.Add(1)
		if s.cancelCycle != nil {
			s.cancelCycle()
		}
		return
	}

	vp := *s.pending
	s.pending = nil
	s.running = true
	s.wg.Add(1)
	go s.drive(vp)
}

// drive runs passes until no request is pending.
func (s *Scheduler) drive(vp Viewport) {
	defer s.wg.Done()

	for {
		s.RunPass(s.ctx, vp)

		s.mu.Lock()
		if s.closed || s.pending == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		vp = *s.pending
		s.pending = nil
		s.mu.Unlock()
	}
}

// RunPass runs one scheduling pass for vp and waits for its renders to
// finish. Concurrent calls are serialized.
func (s *Scheduler) RunPass(ctx context.Context, vp Viewport) PassResult {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	res := s.runPass(ctx, vp)
	s.passes.Add(1)
	if s.onPass != nil {
		s.onPass(res)
	}
	return res
}

func (s *Scheduler) runPass(ctx context.Context, vp Viewport) PassResult {
	zoom := vp.EffectiveZoom()
	vp.Zoom = zoom

	count := s.source.PageCount()
	sizes := document.PageSizes(s.source)

	cycleCtx, cycle := s.startCycle(ctx)
	res := PassResult{Cycle: cycle, Viewport: vp}
	if count == 0 {
		return res
	}

	res.Visible = VisiblePages(sizes, vp, s.gap)
	res.Working = WorkingSet(res.Visible, s.buffer, count)
	res.Unloaded = UnloadCandidates(s.view.Loaded(), res.Working, s.threshold)
	for _, page := range res.Unloaded {
		s.applier.UnloadPage(page)
	}
	s.unloaded.Add(uint64(len(res.Unloaded)))

	var todo []int
	for _, page := range res.Working {
		if s.view.NeedsRender(page, zoom) {
			todo = append(todo, page)
		}
	}
	res.Requested = RenderOrder(todo, res.Visible[0])

	s.logger.Debug("pass %d: visible %v, working %d, render %d, unload %d",
		cycle, res.Visible, len(res.Working), len(res.Requested), len(res.Unloaded))

	var rendered, failed, cancelled atomic.Int32
	var wg sync.WaitGroup
	for i, page := range res.Requested {
		// Skip pages whose cycle ended before their render started.
		if cycleCtx.Err() != nil {
			cancelled.Add(int32(len(res.Requested) - i))
			break
		}
		if err := s.sem.Acquire(cycleCtx, 1); err != nil {
			cancelled.Add(int32(len(res.Requested) - i))
			break
		}
		if cycleCtx.Err() != nil {
			s.sem.Release(1)
			cancelled.Add(int32(len(res.Requested) - i))
			break
		}

		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer s.sem.Release(1)

			switch s.renderPage(cycleCtx, cycle, page, sizes[page], zoom) {
			case outcomeRendered:
				rendered.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeCancelled:
				cancelled.Add(1)
			}
		}(page)
	}
	wg.Wait()

	res.Rendered = int(rendered.Load())
	res.Failed = int(failed.Load())
	res.Cancelled = int(cancelled.Load())
	s.rendered.Add(uint64(res.Rendered))
	s.failed.Add(uint64(res.Failed))
	s.cancelled.Add(uint64(res.Cancelled))
	return res
}

type outcome int

const (
	outcomeRendered outcome = iota
	outcomeFailed
	outcomeCancelled
)

// renderPage renders one page through the cache, builds its text layout,
// and hands the result to the applier unless the cycle has ended.
func (s *Scheduler) renderPage(ctx context.Context, cycle uint64, page int, size PageSize, zoom float64) outcome {
	w, h := TargetPixels(size, zoom)
	key := pagecache.NewKey(s.docID, page, zoom)

	bitmap, err := s.cache.GetOrRender(ctx, key, func(ctx context.Context) (*image.RGBA, error) {
		return s.source.RenderPage(ctx, page, w, h)
	})

	var text *textlayout.PageText
	if err == nil {
		chars, gerr := s.source.CharacterBoxes(ctx, page)
		if gerr != nil && !document.IsCancelled(gerr) {
			// A page without geometry is still displayed; it just has no text.
			s.logger.Warn("geometry for page %d: %v", page, gerr)
		}
		text = textlayout.NewPageText(page, size, chars)
	}

	if ctx.Err() != nil {
		s.logger.Debug("page %d discarded: cycle %d cancelled", page, cycle)
		return outcomeCancelled
	}

	if err != nil {
		switch document.Classify(err) {
		case document.KindCancelled:
			s.logger.Debug("page %d render cancelled", page)
			return outcomeCancelled
		case document.KindNotFound, document.KindUnavailable:
			s.logger.Warn("render page %d: %v", page, err)
		default:
			s.logger.Error("render page %d: %v", page, err)
		}
		s.applier.ApplyPage(ctx, PageResult{Page: page, Zoom: zoom, Cycle: cycle, Err: err})
		return outcomeFailed
	}

	s.applier.ApplyPage(ctx, PageResult{
		Page:   page,
		Zoom:   zoom,
		Cycle:  cycle,
		Bitmap: bitmap,
		Text:   text,
	})
	return outcomeRendered
}

// startCycle cancels the previous cycle and returns the context of a new one.
func (s *Scheduler) startCycle(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.cycle++
	ctx, cancel := context.WithCancel(parent)
	s.cancelCycle = cancel
	return ctx, s.cycle
}

// CancelCycle cancels the current render cycle. Renders that have not
// started are skipped and finished results are not applied.
func (s *Scheduler) CancelCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
}

// Cycle returns the number of the current render cycle.
func (s *Scheduler) Cycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// Close cancels pending and running work and waits for the driver to stop.
// It is safe to call Close multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
}

// Stats holds scheduler statistics.
type Stats struct {
	Passes    uint64
	Requests  uint64
	Coalesced uint64
	Rendered  uint64
	Failed    uint64
	Cancelled uint64
	Unloaded  uint64
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Passes:    s.passes.Load(),
		Requests:  s.requests.Load(),
		Coalesced: s.coalesced.Load(),
		Rendered:  s.rendered.Load(),
		Failed:    s.failed.Load(),
		Cancelled: s.cancelled.Load(),
		Unloaded:  s.unloaded.Load(),
	}
}

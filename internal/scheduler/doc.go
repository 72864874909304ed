// Package scheduler decides which pages of a document to materialize and
// drives their rendering with bounded concurrency and cancellation.
//
// A pass computes the visible pages for a viewport, widens them into a
// working set, unloads pages far outside it, and renders what the view is
// missing, nearest to the first visible page first. Each pass starts a new
// render cycle and cancels the previous one. Results are handed to an
// Applier and are dropped if their cycle was cancelled before they could be
// applied.
//
// Viewport changes go through Schedule, which debounces them. Only one pass
// runs at a time; requests that arrive during a pass cancel its cycle and
// coalesce into a single follow-up pass with the latest viewport.
//
// # Discarding Pages
//
// Callers that drop pages from the cache and the view outside a pass, such
// as on reload, call CancelCycle first. Results of the running cycle are
// then never applied, and the next pass renders the dropped pages again.
//
// # Basic Usage
//
//	store := scheduler.NewPageStore()
//	s := scheduler.New(cache, doc,
//		scheduler.WithApplier(scheduler.LoopApplier{Loop: loop, Store: store}),
//		scheduler.WithConcurrency(4),
//	)
//	defer s.Close()
//
//	s.Schedule(scheduler.Viewport{ScrollOffset: y, Width: w, Height: h, Zoom: zoom})
//
// RunPass runs one pass synchronously and is what tests use.
package scheduler

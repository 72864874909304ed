// Package app wires the page viewer together: configuration, logging, the
// document source, the page cache, the render scheduler, selection and the
// terminal view. It owns the UI loop and the application lifecycle.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/pageview/internal/annotation"
	"github.com/dshills/pageview/internal/config"
	"github.com/dshills/pageview/internal/document"
	"github.com/dshills/pageview/internal/event"
	"github.com/dshills/pageview/internal/logging"
	"github.com/dshills/pageview/internal/pagecache"
	"github.com/dshills/pageview/internal/scheduler"
	"github.com/dshills/pageview/internal/selection"
	"github.com/dshills/pageview/internal/source/imagedir"
	"github.com/dshills/pageview/internal/termview"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses DefaultConfigPath.
	ConfigPath string

	// Dir is the document directory. It overrides source.dir.
	Dir string

	// LogLevel overrides logging.level when set.
	LogLevel string

	// LogFile overrides logging.file when set.
	LogFile string

	// Debug enables debug logging and strict cache invariants.
	Debug bool

	// Screen replaces the terminal screen, for tests.
	Screen tcell.Screen
}

// Application is the central coordinator for all components.
type Application struct {
	mu sync.Mutex

	opts       Options
	configPath string
	cfg        *config.Config

	logger  *logging.Logger
	logFile io.Closer

	source      document.Source
	dirSource   *imagedir.Source
	cache       *pagecache.Cache
	store       *scheduler.PageStore
	sched       *scheduler.Scheduler
	selection   *selection.Engine
	annotations *annotation.MemoryStore

	notifier      *event.Notifier
	loop          *event.Loop
	subscriptions []*event.Subscription
	watcher       *config.Watcher

	term    *termview.Terminal
	view    *termview.View
	metrics *Metrics

	// UI state, owned by the loop goroutine.
	ui uiState

	cacheBytes  atomic.Int64
	drawPending atomic.Bool

	running  atomic.Bool
	quit     atomic.Bool
	shutdown sync.Once
	cancel   context.CancelFunc
}

// New creates an application and initializes every component except the
// terminal, which Run sets up.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts:    opts,
		metrics: NewMetrics(),
	}
	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Run takes over the terminal and runs the UI loop until the user quits or
// ctx is cancelled. A user quit returns ErrQuit.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	term, err := app.terminal()
	if err != nil {
		return &InitError{Component: "terminal", Err: err}
	}
	if err := term.Init(); err != nil {
		return &InitError{Component: "terminal", Err: err}
	}
	defer term.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.mu.Lock()
	app.cancel = cancel
	app.mu.Unlock()

	cols, rows := term.Size()
	if err := app.loop.Post(func() { app.resize(cols, rows) }); err != nil {
		return err
	}
	go app.pollInput(ctx, term)

	app.logger.Info("running: %d pages", app.source.PageCount())
	err = app.loop.Run(ctx)

	switch {
	case app.quit.Load():
		return ErrQuit
	case err == nil, ctx.Err() != nil, errors.Is(err, event.ErrLoopClosed):
		return nil
	default:
		return err
	}
}

// terminal returns the terminal, creating it on first use.
func (app *Application) terminal() (*termview.Terminal, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.term != nil {
		return app.term, nil
	}
	if app.opts.Screen != nil {
		app.term = termview.NewTerminalWithScreen(app.opts.Screen)
	} else {
		t, err := termview.NewTerminal()
		if err != nil {
			return nil, err
		}
		app.term = t
	}
	app.term.OnResize(func(w, h int) {
		_ = app.loop.Post(func() { app.resize(w, h) })
	})
	return app.term, nil
}

// pollInput forwards terminal events to the UI loop. It returns when the
// terminal is shut down.
func (app *Application) pollInput(ctx context.Context, term *termview.Terminal) {
	for {
		ev := term.PollEvent()
		if ev.Type == termview.EventClosed || ctx.Err() != nil {
			return
		}
		if ev.Type == termview.EventInterrupt {
			continue
		}

		err := app.loop.Post(func() { app.dispatch(ev) })
		if errors.Is(err, event.ErrLoopClosed) {
			return
		}
		if err != nil {
			app.metrics.RecordInputDropped()
		}
	}
}

// dispatch handles one input event on the UI loop.
func (app *Application) dispatch(ev termview.Event) {
	start := time.Now()
	err := app.handleEvent(ev)
	app.metrics.RecordInput(time.Since(start))

	switch {
	case errors.Is(err, ErrQuit):
		app.requestQuit()
		return
	case err != nil:
		app.ui.message = err.Error()
	}
	app.requestDraw()
}

// requestQuit stops Run.
func (app *Application) requestQuit() {
	app.quit.Store(true)
	app.mu.Lock()
	cancel := app.cancel
	app.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// requestDraw schedules a redraw. Requests made while one is pending are
// folded into it.
func (app *Application) requestDraw() {
	if !app.drawPending.CompareAndSwap(false, true) {
		app.metrics.RecordCoalescedDraw()
		return
	}
	if err := app.loop.Post(app.draw); err != nil {
		app.drawPending.Store(false)
	}
}

// draw renders one frame. It runs on the UI loop.
func (app *Application) draw() {
	app.drawPending.Store(false)

	app.mu.Lock()
	term := app.term
	app.mu.Unlock()
	if term == nil || app.ui.cols == 0 {
		return
	}

	start := time.Now()
	frame := app.frame()
	term.Draw(func(s tcell.Screen) {
		app.view.Draw(s, frame)
	})
	app.metrics.RecordFrame(time.Since(start))
}

// frame assembles what the view needs for one draw.
func (app *Application) frame() termview.Frame {
	vp := app.viewport()
	f := termview.Frame{
		Viewport:      vp,
		HighlightPage: -1,
		Status: termview.Status{
			Page:          app.view.CurrentPage(vp),
			PageCount:     app.view.PageCount(),
			Zoom:          app.ui.zoomFactor,
			CacheBytes:    app.cacheBytes.Load(),
			CacheBudget:   app.cache.Budget(),
			SelectedChars: len(app.selection.Selection()),
			OverText:      app.selection.OverText(),
			Message:       app.ui.message,
		},
	}
	if pt := app.selection.Page(); pt != nil {
		f.Highlights = app.selection.Highlights()
		f.HighlightPage = pt.PageIndex()
	}
	return f
}

// Shutdown stops every component. It is safe to call more than once and
// concurrently with Run.
func (app *Application) Shutdown() {
	app.shutdown.Do(func() {
		app.requestQuitSilently()
		if err := app.close(); err != nil {
			app.logger.Warn("shutdown: %v", err)
		}
	})
}

// requestQuitSilently cancels Run without marking a user quit.
func (app *Application) requestQuitSilently() {
	app.mu.Lock()
	cancel := app.cancel
	app.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// close releases components in reverse initialization order.
func (app *Application) close() error {
	var errs ErrorList

	if app.watcher != nil {
		errs.Add(app.watcher.Close())
	}
	// Closing the loop first releases scheduler workers blocked posting to it.
	if app.loop != nil {
		app.loop.Close()
	}
	if app.sched != nil {
		app.sched.Close()
	}
	for _, sub := range app.subscriptions {
		sub.Unsubscribe()
	}
	if app.notifier != nil {
		app.notifier.Close()
	}
	if app.dirSource != nil {
		errs.Add(app.dirSource.Close())
	}
	if app.cache != nil {
		if err := app.cache.Verify(); err != nil {
			errs.Add(NewComponentError("cache", "verify", err))
		}
	}

	m := app.metrics.Snapshot()
	app.logger.Info("stopped after %v: %d frames (avg %v), %d inputs, %d dropped",
		m.Uptime.Round(time.Millisecond), m.FrameCount, m.AvgFrame, m.InputCount, m.InputDropped)

	if app.logFile != nil {
		errs.Add(app.logFile.Close())
	}
	return errs.AsError()
}

// IsRunning reports whether Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the configuration in effect.
func (app *Application) Config() *config.Config {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Source returns the open document.
func (app *Application) Source() document.Source {
	return app.source
}

// Cache returns the page cache.
func (app *Application) Cache() *pagecache.Cache {
	return app.cache
}

// Scheduler returns the render scheduler.
func (app *Application) Scheduler() *scheduler.Scheduler {
	return app.sched
}

// Store returns the page view state.
func (app *Application) Store() *scheduler.PageStore {
	return app.store
}

// Annotations returns the annotation store.
func (app *Application) Annotations() annotation.Store {
	return app.annotations
}

// Notifier returns the application notifier.
func (app *Application) Notifier() *event.Notifier {
	return app.notifier
}

// Loop returns the UI loop.
func (app *Application) Loop() *event.Loop {
	return app.loop
}

// Metrics returns the UI metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

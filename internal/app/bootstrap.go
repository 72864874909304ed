package app

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

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

// DefaultConfigPath returns the configuration file used when none is given:
// $XDG_CONFIG_HOME/pageview/config.toml or its platform equivalent.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pageview", "config.toml")
}

// applyOverrides applies command line options over cfg.
func applyOverrides(cfg *config.Config, opts Options) {
	if opts.Dir != "" {
		cfg.Source.Dir = opts.Dir
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		cfg.Logging.File = opts.LogFile
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
		cfg.Cache.StrictInvariants = true
	}
}

// bootstrapper initializes components in dependency order and cleans up
// the ones already started when a later step fails.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      app.opts,
		initOrder: make([]string, 0, 8),
	}
}

func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"config", b.initConfig},
		{"logging", b.initLogging},
		{"events", b.initEvents},
		{"source", b.initSource},
		{"cache", b.initCache},
		{"scheduler", b.initScheduler},
		{"selection", b.initSelection},
		{"view", b.initView},
		{"watcher", b.initWatcher},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	b.app.subscribe()
	return nil
}

// cleanup releases what was initialized before a failure.
func (b *bootstrapper) cleanup() {
	app := b.app
	if app.logger == nil {
		app.logger = logging.NullLogger
	}
	app.logger.Debug("init failed; releasing %v", b.initOrder)
	_ = app.close()
}

func (b *bootstrapper) initConfig() error {
	path := b.opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg, err := config.Load(path, config.DefaultEnvPrefix)
	if err != nil {
		return err
	}

	applyOverrides(cfg, b.opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	b.app.cfg = cfg
	b.app.configPath = path
	return nil
}

// initLogging sends logs to the configured file. Without one, logs are
// discarded, since the terminal belongs to the view.
func (b *bootstrapper) initLogging() error {
	cfg := b.app.cfg

	var out io.Writer = io.Discard
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
		b.app.logFile = f
	}

	b.app.logger = logging.New(logging.Config{
		Level:  cfg.LogLevel(),
		Output: out,
		Prefix: "pageview",
	})
	return nil
}

func (b *bootstrapper) initEvents() error {
	app := b.app
	app.notifier = event.NewNotifier()
	app.loop = event.NewLoop(
		event.WithLoopLogger(app.logger),
		event.WithPanicHandler(func(value any, stack []byte) {
			app.logger.Error("ui loop panic: %v\n%s", value, stack)
		}),
	)
	return nil
}

// initSource opens the document directory, or an empty document when no
// directory is configured.
func (b *bootstrapper) initSource() error {
	app := b.app
	cfg := app.cfg

	if cfg.Source.Dir == "" {
		app.source = document.NewMemory()
		app.logger.Info("no document directory; starting empty")
		return nil
	}

	src, err := imagedir.Open(cfg.Source.Dir,
		imagedir.WithLogger(app.logger),
		imagedir.WithFastScaling(cfg.Source.Fast),
		imagedir.WithWatch(cfg.Source.Watch),
		imagedir.WithChangeHandler(app.onSourceChange),
	)
	if err != nil {
		return err
	}
	app.source = src
	app.dirSource = src
	return nil
}

func (b *bootstrapper) initCache() error {
	app := b.app
	cfg := app.cfg

	app.cache = pagecache.New(cfg.CacheBudget(),
		pagecache.WithLogger(app.logger),
		pagecache.WithSingleFlight(cfg.Cache.SingleFlight),
		pagecache.WithStrictInvariants(cfg.Cache.StrictInvariants),
		pagecache.WithSizeListener(func(bytes int64) {
			app.cacheBytes.Store(bytes)
			app.notifier.PublishTopic(event.TopicCacheSize, bytes, "cache")
		}),
	)
	app.logger.Info("page cache budget %s", humanize.IBytes(uint64(cfg.CacheBudget())))
	return nil
}

func (b *bootstrapper) initScheduler() error {
	app := b.app
	r := app.cfg.Render

	app.store = scheduler.NewPageStore()
	app.sched = scheduler.New(app.cache, app.source,
		scheduler.WithLogger(app.logger),
		scheduler.WithBufferPages(r.BufferPages),
		scheduler.WithUnloadThreshold(r.UnloadThreshold),
		scheduler.WithConcurrency(r.Concurrency),
		scheduler.WithDebounce(r.Debounce.Std()),
		scheduler.WithPageGap(r.PageGap),
		scheduler.WithApplier(scheduler.LoopApplier{
			Loop:     app.loop,
			Store:    app.store,
			Notifier: app.notifier,
		}),
	)
	return nil
}

func (b *bootstrapper) initSelection() error {
	app := b.app
	s := app.cfg.Selection

	app.annotations = annotation.NewMemoryStore()
	app.selection = selection.New(
		selection.WithDoubleClick(s.DoubleClickTime.Std(), s.DoubleClickRadius),
		selection.WithMergeTolerance(s.MergeTolerance),
		selection.WithListener(selection.ListenerFunc(func(c selection.Change) {
			app.notifier.PublishTopic(event.TopicSelectionChanged, c, "selection")
		})),
	)
	return nil
}

func (b *bootstrapper) initView() error {
	app := b.app
	app.view = termview.NewView(document.PageSizes(app.source), app.sched.PageGap(), app.store, app.annotations)
	app.ui = uiState{zoomFactor: app.cfg.Render.Zoom}
	return nil
}

// initWatcher reloads the configuration file when it changes. A missing
// file is not watched.
func (b *bootstrapper) initWatcher() error {
	app := b.app
	if app.configPath == "" {
		return nil
	}
	if _, err := os.Stat(app.configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	w, err := config.NewWatcher(app.configPath,
		func(cfg *config.Config) {
			app.notifier.PublishTopic(event.TopicConfigReloaded, cfg, "config")
		},
		config.WithWatchLogger(app.logger),
		config.WithEnvPrefix(config.DefaultEnvPrefix),
		config.WithErrorHandler(func(err error) {
			_ = app.loop.Post(func() {
				app.ui.message = "config: " + err.Error()
				app.requestDraw()
			})
		}),
	)
	if err != nil {
		return err
	}
	app.watcher = w
	return nil
}

package app

import (
	"github.com/dshills/pageview/internal/config"
	"github.com/dshills/pageview/internal/document"
	"github.com/dshills/pageview/internal/event"
	"github.com/dshills/pageview/internal/source/imagedir"
)

// subscribe connects notifier topics to the UI. Page and selection events
// are published from the UI loop; cache and config events are not, so
// their observers post to it.
func (app *Application) subscribe() {
	n := app.notifier

	app.subscriptions = append(app.subscriptions,
		n.SubscribeTopic(event.TopicPageApplied, app.onPageApplied),
		n.SubscribeTopic(event.TopicPageFailed, func(ev event.Event) {
			if page, ok := ev.Payload.(int); ok {
				app.logger.Debug("page %d failed to render", page)
			}
			app.requestDraw()
		}),
		n.SubscribeTopic(event.TopicSelectionChanged, func(event.Event) {
			app.requestDraw()
		}),
		n.SubscribeTopic(event.TopicCacheSize, func(event.Event) {
			app.requestDraw()
		}),
		n.SubscribeTopic(event.TopicConfigReloaded, func(ev event.Event) {
			cfg, ok := ev.Payload.(*config.Config)
			if !ok {
				return
			}
			_ = app.loop.Post(func() { app.applyConfig(cfg) })
		}),
	)
}

// onPageApplied redraws and, when the selection engine is still using
// placeholder geometry for the page, hands it the loaded text.
func (app *Application) onPageApplied(ev event.Event) {
	page, ok := ev.Payload.(int)
	if ok && app.isActivePage(page) && len(app.selection.Selection()) == 0 {
		if st, found := app.store.State(page); found && st.Text != nil {
			app.selection.SetPage(st.Text)
		}
	}
	app.requestDraw()
}

// applyConfig adopts a reloaded configuration. The cache budget and log
// level change immediately; render and selection settings apply on the
// next start. It runs on the UI loop.
func (app *Application) applyConfig(cfg *config.Config) {
	applyOverrides(cfg, app.opts)
	if err := cfg.Validate(); err != nil {
		app.ui.message = "config: " + err.Error()
		app.requestDraw()
		return
	}

	app.mu.Lock()
	app.cfg = cfg
	app.mu.Unlock()

	app.logger.SetLevel(cfg.LogLevel())
	app.cache.SetBudget(cfg.CacheBudget())
	app.logger.Info("config reloaded: cache budget %d MB, log level %s", cfg.Cache.BudgetMB, cfg.LogLevel())

	app.ui.message = "config reloaded"
	app.requestDraw()
}

// onSourceChange is the document directory change handler. It is called
// from the watcher goroutine.
func (app *Application) onSourceChange(c imagedir.Change) {
	_ = app.loop.Post(func() { app.sourceChanged(c) })
}

func (app *Application) sourceChanged(c imagedir.Change) {
	id := app.source.ID()

	switch c.Kind {
	case imagedir.ChangePage:
		app.sched.CancelCycle()
		for _, key := range app.cache.Keys() {
			if key.DocumentID == id && key.PageIndex == c.Page {
				app.cache.Remove(key)
			}
		}
		app.store.Unload(c.Page)
		if app.isActivePage(c.Page) {
			app.selection.SetPage(nil)
		}
		app.view.SetPages(document.PageSizes(app.source))
		app.sched.Schedule(app.viewport())
		app.logger.Debug("page %d changed on disk", c.Page)

	case imagedir.ChangeUnavailable:
		app.sched.CancelCycle()
		n := app.cache.ClearDocument(id)
		app.ui.message = "document directory is no longer available"
		app.logger.Warn("document unavailable; dropped %d cached pages", n)
	}
	app.requestDraw()
}

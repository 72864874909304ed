package app

import (
	"fmt"
	"math"
	"time"

	"github.com/dshills/pageview/internal/annotation"
	"github.com/dshills/pageview/internal/document"
	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/scheduler"
	"github.com/dshills/pageview/internal/termview"
	"github.com/dshills/pageview/internal/textlayout"
)

const (
	// scrollStep is the line scroll distance in pixels.
	scrollStep = 4

	// wheelStep is the mouse wheel scroll distance in pixels.
	wheelStep = 3 * scrollStep

	zoomStep = 1.25
	minZoom  = 0.25
	maxZoom  = 8.0
)

// uiState is the view state owned by the UI loop.
type uiState struct {
	cols, rows int

	// scroll is the strip coordinate at the top of the screen.
	scroll float64

	// zoomFactor is relative to fit-width.
	zoomFactor float64

	message string

	// dragging is set between a left press and its release.
	dragging bool
}

// viewport returns the current pixel viewport.
func (app *Application) viewport() scheduler.Viewport {
	zoom := app.view.FitWidthZoom(app.ui.cols) * app.ui.zoomFactor
	return termview.ViewportFor(app.ui.cols, app.ui.rows, app.ui.scroll, zoom)
}

// resize adopts a new screen size, keeping the same part of the document
// at the top of the screen.
func (app *Application) resize(cols, rows int) {
	if cols == app.ui.cols && rows == app.ui.rows {
		return
	}
	old := app.viewport()
	app.ui.cols, app.ui.rows = cols, rows
	if old.Width > 0 {
		app.ui.scroll *= app.viewport().Zoom / old.Zoom
	}
	app.scrollTo(app.ui.scroll)
	app.sched.Schedule(app.viewport())
	app.requestDraw()
}

// scrollTo moves the top of the screen to y, clamped to the strip.
func (app *Application) scrollTo(y float64) {
	vp := app.viewport()
	limit := math.Max(app.view.ContentHeight(vp.Zoom)-vp.Height, 0)
	app.ui.scroll = math.Min(math.Max(y, 0), limit)
}

// scrollBy scrolls by dy pixels and schedules rendering for the new view.
func (app *Application) scrollBy(dy float64) {
	before := app.ui.scroll
	app.scrollTo(before + dy)
	if app.ui.scroll != before {
		app.sched.Schedule(app.viewport())
	}
}

// gotoPage scrolls so that page is at the top of the screen.
func (app *Application) gotoPage(page int) {
	page = min(max(page, 0), app.view.PageCount()-1)
	if page < 0 {
		return
	}
	vp := app.viewport()
	app.scrollBy(app.view.PageTop(page, vp.Zoom) - app.ui.scroll)
}

// setZoom changes the zoom factor, keeping the centre of the screen on the
// same point of the document.
func (app *Application) setZoom(factor float64) {
	factor = math.Min(math.Max(factor, minZoom), maxZoom)
	if factor == app.ui.zoomFactor {
		return
	}
	old := app.viewport()
	centre := old.ScrollOffset + old.Height/2

	app.ui.zoomFactor = factor
	vp := app.viewport()
	app.scrollTo(centre*vp.Zoom/old.Zoom - vp.Height/2)
	app.sched.Schedule(app.viewport())
}

// handleEvent applies one input event. It runs on the UI loop.
func (app *Application) handleEvent(ev termview.Event) error {
	switch ev.Type {
	case termview.EventKey:
		return app.handleKey(ev)
	case termview.EventMouse:
		return app.handleMouse(ev)
	case termview.EventResize:
		app.resize(ev.Width, ev.Height)
	}
	return nil
}

func (app *Application) handleKey(ev termview.Event) error {
	app.ui.message = ""

	switch ev.Key {
	case termview.KeyCtrlC:
		return ErrQuit
	case termview.KeyEscape:
		if len(app.selection.Selection()) > 0 {
			app.selection.Clear()
			return nil
		}
		return ErrQuit
	case termview.KeyUp:
		app.scrollBy(-scrollStep)
	case termview.KeyDown:
		app.scrollBy(scrollStep)
	case termview.KeyPageUp:
		app.scrollBy(-app.pageStep())
	case termview.KeyPageDown:
		app.scrollBy(app.pageStep())
	case termview.KeyHome:
		app.scrollBy(-app.ui.scroll)
	case termview.KeyEnd:
		app.scrollBy(math.Inf(1))
	case termview.KeyCtrlA:
		app.selectAll()
	case termview.KeyCtrlL:
		if app.term != nil {
			app.term.Sync()
		}
	case termview.KeyRune:
		return app.handleRune(ev.Rune)
	}
	return nil
}

func (app *Application) handleRune(r rune) error {
	switch r {
	case 'q':
		return ErrQuit
	case 'j':
		app.scrollBy(scrollStep)
	case 'k':
		app.scrollBy(-scrollStep)
	case ' ':
		app.scrollBy(app.pageStep())
	case 'b':
		app.scrollBy(-app.pageStep())
	case 'g':
		app.scrollBy(-app.ui.scroll)
	case 'G':
		app.scrollBy(math.Inf(1))
	case 'n':
		app.gotoPage(app.view.CurrentPage(app.viewport()) + 1)
	case 'p':
		app.gotoPage(app.view.CurrentPage(app.viewport()) - 1)
	case '+', '=':
		app.setZoom(app.ui.zoomFactor * zoomStep)
	case '-':
		app.setZoom(app.ui.zoomFactor / zoomStep)
	case '0':
		app.setZoom(1)
	case 'h':
		return app.annotate(annotation.KindHighlight)
	case 'u':
		return app.annotate(annotation.KindUnderline)
	case 'm':
		return app.annotate(annotation.KindNote)
	case 'y':
		text := app.selection.Text()
		if text == "" {
			return ErrNoSelection
		}
		app.ui.message = fmt.Sprintf("%q", text)
	case 'r':
		app.reload()
	}
	return nil
}

// pageStep is the scroll distance of one screen, less a small overlap.
func (app *Application) pageStep() float64 {
	return math.Max(app.viewport().Height-2, scrollStep)
}

func (app *Application) handleMouse(ev termview.Event) error {
	switch ev.Button {
	case termview.MouseWheelUp:
		app.scrollBy(-wheelStep)
		return nil
	case termview.MouseWheelDown:
		app.scrollBy(wheelStep)
		return nil
	case termview.MouseLeft:
		app.pointerPressed(ev.X, ev.Y)
		return nil
	case termview.MouseNone:
		app.pointerReleasedOrMoved(ev.X, ev.Y)
	}
	return nil
}

// pointerPressed handles a left button event. tcell reports the button on
// every motion event while it is held, so only the first one is a press.
func (app *Application) pointerPressed(col, row int) {
	page, pt, ok := app.view.MapCell(app.viewport(), col, row)

	if app.ui.dragging {
		if ok && app.isActivePage(page) {
			app.selection.PointerMove(pt)
		}
		return
	}
	if !ok {
		app.selection.Clear()
		return
	}

	app.ui.dragging = true
	app.activatePage(page)
	app.selection.PointerDown(pt, time.Now())
}

func (app *Application) pointerReleasedOrMoved(col, row int) {
	page, pt, ok := app.view.MapCell(app.viewport(), col, row)

	if app.ui.dragging {
		app.ui.dragging = false
		app.selection.PointerUp(pt)
		return
	}
	if !ok {
		return
	}
	if !app.isActivePage(page) && len(app.selection.Selection()) == 0 {
		app.activatePage(page)
	}
	if app.isActivePage(page) {
		app.selection.PointerMove(pt)
	}
}

func (app *Application) isActivePage(page int) bool {
	pt := app.selection.Page()
	return pt != nil && pt.PageIndex() == page
}

// activatePage gives the selection engine the text of page. A page whose
// text has not been loaded yet gets empty geometry.
func (app *Application) activatePage(page int) {
	current := app.selection.Page()
	if st, ok := app.store.State(page); ok && st.Text != nil {
		app.selection.SetPage(st.Text)
		return
	}
	if current != nil && current.PageIndex() == page {
		return
	}
	size, err := app.source.PageSize(page)
	if err != nil {
		size = geom.Size{}
	}
	app.selection.SetPage(textlayout.NewPageText(page, size, nil))
}

// selectAll selects the text of the page at the centre of the screen.
func (app *Application) selectAll() {
	if app.view.PageCount() == 0 {
		return
	}
	app.activatePage(app.view.CurrentPage(app.viewport()))
	app.selection.SelectAll()
}

// annotate saves the current selection as an annotation of kind.
func (app *Application) annotate(kind annotation.Kind) error {
	pt := app.selection.Page()
	rects := app.selection.Highlights()
	if pt == nil || len(rects) == 0 {
		return ErrNoSelection
	}

	var note string
	if kind == annotation.KindNote {
		note = app.selection.Text()
	}
	a, err := annotation.FromSelection(pt.PageIndex(), kind, rects, note)
	if err != nil {
		return err
	}
	if err := app.annotations.Save(a); err != nil {
		return err
	}

	app.view.Invalidate(a.Page)
	app.selection.Clear()
	app.ui.message = fmt.Sprintf("%s added to page %d", kind, a.Page+1)
	app.logger.Debug("annotation %s: %s on page %d", a.ID, kind, a.Page)
	return nil
}

// reload drops every rendered page and renders the view again. The running
// cycle is cancelled first so its renders cannot restore what was dropped.
func (app *Application) reload() {
	app.sched.CancelCycle()
	n := app.cache.ClearDocument(app.source.ID())
	app.store.Clear()
	app.view.SetPages(document.PageSizes(app.source))
	app.sched.Schedule(app.viewport())
	app.ui.message = fmt.Sprintf("reloaded; %d cached pages dropped", n)
}

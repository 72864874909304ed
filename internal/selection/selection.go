package selection

import (
	"strings"
	"time"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/textlayout"
)

// State is the selection engine state.
type State uint8

const (
	// StateIdle means no drag is in progress.
	StateIdle State = iota
	// StateSelecting means a drag selection is in progress.
	StateSelecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Defaults for click detection and highlight merging.
const (
	DefaultDoubleClickWindow = 500 * time.Millisecond
	DefaultDoubleClickRadius = 4.0
	DefaultMergeTolerance    = 2.0
)

// Change describes a selection update.
type Change struct {
	// PageIndex is the page the selection belongs to, -1 if no page is set.
	PageIndex int

	// Chars are the selected characters in reading order.
	Chars []textlayout.CharBox

	// Highlights are the merged highlight rectangles.
	Highlights []geom.Rect

	// Anchor is the press point that started the selection.
	Anchor geom.Point

	// Cleared is true when the selection became empty.
	Cleared bool
}

// Listener receives selection updates.
type Listener interface {
	SelectionChanged(change Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(change Change)

// SelectionChanged calls f(change).
func (f ListenerFunc) SelectionChanged(change Change) {
	f(change)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDoubleClick sets the double-click time window and pointer radius.
func WithDoubleClick(window time.Duration, radius float64) Option {
	return func(e *Engine) {
		if window > 0 {
			e.clicks.maxTime = window
		}
		if radius >= 0 {
			e.clicks.maxDistance = radius
		}
	}
}

// WithMergeTolerance sets the highlight merge tolerance.
func WithMergeTolerance(tol float64) Option {
	return func(e *Engine) {
		if tol >= 0 {
			e.mergeTol = tol
		}
	}
}

// WithListener sets the selection listener.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listener = l
	}
}

// WithClock overrides the time source used for zero press timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the selection state machine.
type Engine struct {
	page     *textlayout.PageText
	state    State
	anchor   geom.Point
	words    []*textlayout.Word
	chars    []textlayout.CharBox
	rects    []geom.Rect
	overText bool

	clicks   *clickTracker
	mergeTol float64
	listener Listener
	now      func() time.Time
}

// New creates a selection engine with no active page.
func New(opts ...Option) *Engine {
	e := &Engine{
		clicks:   newClickTracker(DefaultDoubleClickWindow, DefaultDoubleClickRadius),
		mergeTol: DefaultMergeTolerance,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPage makes pt the active page geometry. Any existing selection refers
// to the old geometry and is cleared. A nil page disables selection.
func (e *Engine) SetPage(pt *textlayout.PageText) {
	if pt == e.page {
		return
	}
	hadSelection := len(e.chars) > 0
	e.page = pt
	e.state = StateIdle
	e.overText = false
	e.clicks.reset()
	e.clearSelection()
	if hadSelection {
		e.emit(true)
	}
}

// Page returns the active page geometry.
func (e *Engine) Page() *textlayout.PageText {
	return e.page
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// OverText reports whether the last idle pointer move was over a glyph.
func (e *Engine) OverText() bool {
	return e.overText
}

// Anchor returns the press point of the current or last selection.
func (e *Engine) Anchor() geom.Point {
	return e.anchor
}

// PointerDown handles a press at p.
func (e *Engine) PointerDown(p geom.Point, at time.Time) {
	count := e.clicks.recordClick(p, at, e.now)
	if count >= 2 {
		// A third rapid press starts a new sequence.
		e.clicks.reset()
		e.anchor = p
		e.state = StateIdle
		e.selectWordAt(p)
		return
	}

	e.clearSelection()
	e.anchor = p
	e.state = StateSelecting
	e.emit(true)
}

// PointerMove handles pointer motion. While selecting it extends the
// selection; otherwise it updates the over-text indicator.
func (e *Engine) PointerMove(p geom.Point) {
	if e.state != StateSelecting {
		e.updateOverText(p)
		return
	}
	if e.page == nil {
		return
	}

	region := geom.RectFromPoints(e.anchor, p)
	e.setWords(e.page.WordsIn(region))
	e.emit(len(e.chars) == 0)
}

// PointerUp ends a drag selection.
func (e *Engine) PointerUp(_ geom.Point) {
	if e.state != StateSelecting {
		return
	}
	e.state = StateIdle
	e.emit(len(e.chars) == 0)
}

// SelectAll selects every word on the active page.
func (e *Engine) SelectAll() {
	if e.page == nil {
		return
	}
	e.state = StateIdle
	words := append([]*textlayout.Word(nil), e.page.Words()...)
	textlayout.SortReadingOrder(words)
	e.setWords(words)
	e.emit(len(e.chars) == 0)
}

// Clear drops the current selection.
func (e *Engine) Clear() {
	if len(e.chars) == 0 && e.state == StateIdle {
		return
	}
	e.state = StateIdle
	e.clearSelection()
	e.emit(true)
}

// Selection returns a copy of the selected characters in reading order.
func (e *Engine) Selection() []textlayout.CharBox {
	out := make([]textlayout.CharBox, len(e.chars))
	copy(out, e.chars)
	return out
}

// Highlights returns a copy of the merged highlight rectangles.
func (e *Engine) Highlights() []geom.Rect {
	out := make([]geom.Rect, len(e.rects))
	copy(out, e.rects)
	return out
}

// Text returns the selected text with words separated by spaces and lines
// by newlines.
func (e *Engine) Text() string {
	var b strings.Builder
	for i, w := range e.words {
		if i > 0 {
			if sameLine(e.words[i-1], w) {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(w.Text())
	}
	return b.String()
}

func (e *Engine) selectWordAt(p geom.Point) {
	e.clearSelection()
	if e.page != nil {
		if w, ok := e.page.WordAt(p); ok {
			e.setWords([]*textlayout.Word{w})
		}
	}
	e.emit(len(e.chars) == 0)
}

func (e *Engine) updateOverText(p geom.Point) {
	if e.page == nil {
		e.overText = false
		return
	}
	_, e.overText = e.page.CharAt(p)
}

func (e *Engine) setWords(words []*textlayout.Word) {
	e.words = words
	e.chars = e.chars[:0]
	rects := make([]geom.Rect, 0, len(words)*4)
	for _, w := range words {
		for _, c := range w.Chars {
			e.chars = append(e.chars, c)
			rects = append(rects, c.Box)
		}
	}
	e.rects = MergeRects(rects, e.mergeTol)
}

func (e *Engine) clearSelection() {
	e.words = nil
	e.chars = nil
	e.rects = nil
}

func (e *Engine) emit(cleared bool) {
	if e.listener == nil {
		return
	}
	pageIndex := -1
	if e.page != nil {
		pageIndex = e.page.PageIndex()
	}
	e.listener.SelectionChanged(Change{
		PageIndex:  pageIndex,
		Chars:      e.Selection(),
		Highlights: e.Highlights(),
		Anchor:     e.anchor,
		Cleared:    cleared,
	})
}

func sameLine(a, b *textlayout.Word) bool {
	return a.Box.Top < b.Box.Bottom && b.Box.Top < a.Box.Bottom
}

package selection

import (
	"testing"
	"time"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/textlayout"
)

// recorder captures listener notifications.
type recorder struct {
	changes []Change
}

func (r *recorder) SelectionChanged(c Change) {
	r.changes = append(r.changes, c)
}

func (r *recorder) last() Change {
	return r.changes[len(r.changes)-1]
}

// testPage lays out "alpha beta" over "gamma delta", 6 units per glyph.
func testPage(index int) *textlayout.PageText {
	var chars []textlayout.CharBox
	add := func(s string, left, top float64) {
		x := left
		for _, r := range s {
			chars = append(chars, textlayout.CharBox{Char: r, Box: geom.R(x, top, x+6, top+10)})
			x += 6
		}
	}
	add("alpha", 10, 10)
	add("beta", 80, 10)
	add("gamma", 10, 40)
	add("delta", 80, 40)
	return textlayout.NewPageText(index, geom.Size{Width: 200, Height: 100}, chars)
}

func selectedText(chars []textlayout.CharBox) string {
	rs := make([]rune, len(chars))
	for i, c := range chars {
		rs[i] = c.Char
	}
	return string(rs)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateSelecting, "selecting"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestPointerDownStartsSelecting(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(0))

	now := time.Now()
	e.PointerDown(geom.Pt(5, 5), now)

	if e.State() != StateSelecting {
		t.Fatalf("state = %v, want selecting", e.State())
	}
	if len(rec.changes) != 1 || !rec.last().Cleared {
		t.Fatalf("expected one cleared notification, got %+v", rec.changes)
	}
	if rec.last().Anchor != geom.Pt(5, 5) {
		t.Errorf("anchor = %v", rec.last().Anchor)
	}
}

func TestDragSelectsWholeWords(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(2))

	now := time.Now()
	// Start inside "alpha", end inside "beta": both words selected whole.
	e.PointerDown(geom.Pt(25, 15), now)
	e.PointerMove(geom.Pt(85, 15))

	if got := selectedText(e.Selection()); got != "alphabeta" {
		t.Fatalf("selection = %q, want %q", got, "alphabeta")
	}
	if got := e.Text(); got != "alpha beta" {
		t.Errorf("Text = %q", got)
	}
	if rec.last().Cleared || rec.last().PageIndex != 2 {
		t.Errorf("last change = %+v", rec.last())
	}

	// Extend down into the second line.
	e.PointerMove(geom.Pt(15, 45))
	if got := selectedText(e.Selection()); got != "alphagamma" {
		t.Fatalf("selection = %q, want %q", got, "alphagamma")
	}

	e.PointerUp(geom.Pt(15, 45))
	if e.State() != StateIdle {
		t.Errorf("state after up = %v", e.State())
	}
	if rec.last().Cleared {
		t.Error("final notification should carry the selection")
	}
	if got := e.Text(); got != "alpha\ngamma" {
		t.Errorf("Text = %q", got)
	}
}

func TestDragOverEmptySpaceClears(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(0))

	e.PointerDown(geom.Pt(150, 70), time.Now())
	e.PointerMove(geom.Pt(190, 90))
	e.PointerUp(geom.Pt(190, 90))

	if len(e.Selection()) != 0 {
		t.Errorf("selection = %q, want empty", selectedText(e.Selection()))
	}
	if !rec.last().Cleared {
		t.Error("pointer up with nothing selected should notify cleared")
	}
}

func TestDoubleClickSelectsWord(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(1))

	start := time.Now()
	p := geom.Pt(92, 45) // inside "delta"
	e.PointerDown(p, start)
	e.PointerUp(p)
	// Press duration does not matter; only press spacing does.
	e.PointerDown(geom.Pt(93, 46), start.Add(450*time.Millisecond))

	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle after double click", e.State())
	}
	if got := selectedText(e.Selection()); got != "delta" {
		t.Fatalf("selection = %q, want %q", got, "delta")
	}
	if rec.last().Cleared {
		t.Error("double click on a word should notify a selection")
	}
	if len(e.Highlights()) != 1 {
		t.Errorf("highlights = %v, want a single merged rect", e.Highlights())
	}
}

func TestDoubleClickOutsideWindowIsSingle(t *testing.T) {
	e := New()
	e.SetPage(testPage(0))

	start := time.Now()
	p := geom.Pt(15, 15)
	e.PointerDown(p, start)
	e.PointerUp(p)
	e.PointerDown(p, start.Add(600*time.Millisecond))

	if e.State() != StateSelecting {
		t.Errorf("state = %v, want selecting", e.State())
	}
	if len(e.Selection()) != 0 {
		t.Error("slow second press should not select a word")
	}
}

func TestDoubleClickTooFarIsSingle(t *testing.T) {
	e := New()
	e.SetPage(testPage(0))

	start := time.Now()
	e.PointerDown(geom.Pt(15, 15), start)
	e.PointerUp(geom.Pt(15, 15))
	e.PointerDown(geom.Pt(40, 15), start.Add(100*time.Millisecond))

	if len(e.Selection()) != 0 {
		t.Error("distant second press should not select a word")
	}
}

func TestTripleClickStartsNewSequence(t *testing.T) {
	e := New()
	e.SetPage(testPage(0))

	start := time.Now()
	p := geom.Pt(15, 15)
	e.PointerDown(p, start)
	e.PointerDown(p, start.Add(100*time.Millisecond))
	e.PointerDown(p, start.Add(200*time.Millisecond))

	if e.State() != StateSelecting {
		t.Errorf("third press state = %v, want selecting", e.State())
	}
}

func TestDoubleClickOnGapClears(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(0))

	start := time.Now()
	p := geom.Pt(60, 15) // between "alpha" and "beta"
	e.PointerDown(p, start)
	e.PointerDown(p, start.Add(100*time.Millisecond))

	if len(e.Selection()) != 0 {
		t.Error("double click on a gap should select nothing")
	}
	if !rec.last().Cleared {
		t.Error("expected cleared notification")
	}
}

func TestOverText(t *testing.T) {
	e := New()
	e.SetPage(testPage(0))

	e.PointerMove(geom.Pt(12, 12))
	if !e.OverText() {
		t.Error("pointer over 'a' should be over text")
	}

	// Same character grid cell, but below the glyph.
	e.PointerMove(geom.Pt(12, 25))
	if e.OverText() {
		t.Error("pointer below glyph should not be over text")
	}
}

func TestSetPageClearsSelection(t *testing.T) {
	rec := &recorder{}
	e := New(WithListener(rec))
	e.SetPage(testPage(0))
	e.SelectAll()

	if len(e.Selection()) == 0 {
		t.Fatal("SelectAll selected nothing")
	}

	e.SetPage(testPage(0))

	if len(e.Selection()) != 0 {
		t.Error("new geometry should clear the selection")
	}
	if !rec.last().Cleared {
		t.Error("geometry change should notify cleared")
	}
}

func TestSelectAllReadingOrder(t *testing.T) {
	e := New()
	e.SetPage(testPage(0))
	e.SelectAll()

	if got := e.Text(); got != "alpha beta\ngamma delta" {
		t.Errorf("Text = %q", got)
	}
	if got := len(e.Highlights()); got != 4 {
		t.Errorf("highlights = %d, want one per word", got)
	}
}

func TestNoPageIsSafe(t *testing.T) {
	e := New()
	e.PointerDown(geom.Pt(1, 1), time.Time{})
	e.PointerMove(geom.Pt(2, 2))
	e.PointerUp(geom.Pt(2, 2))
	e.SelectAll()

	if len(e.Selection()) != 0 {
		t.Error("no page should mean no selection")
	}
}

func TestMergeRects(t *testing.T) {
	rects := []geom.Rect{
		geom.R(12, 0, 18, 10),
		geom.R(0, 0, 6, 10),
		geom.R(6, 0, 12, 10),
		geom.R(30, 0, 36, 10), // gap of 12, new run
		geom.R(0, 20, 6, 30),  // next line
	}

	got := MergeRects(rects, 2)

	want := []geom.Rect{
		geom.R(0, 0, 18, 10),
		geom.R(30, 0, 36, 10),
		geom.R(0, 20, 6, 30),
	}
	if len(got) != len(want) {
		t.Fatalf("MergeRects = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rect %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if rects[0] != geom.R(12, 0, 18, 10) {
		t.Error("MergeRects modified its input")
	}
}

func TestMergeRectsTolerance(t *testing.T) {
	rects := []geom.Rect{
		geom.R(0, 0, 6, 10),
		geom.R(7.5, 1, 13, 11), // 1.5 gap and 1 unit lower: within tolerance 2
	}

	if got := MergeRects(rects, 2); len(got) != 1 {
		t.Errorf("within tolerance: %v", got)
	}
	if got := MergeRects(rects, 1); len(got) != 2 {
		t.Errorf("outside tolerance: %v", got)
	}
	if got := MergeRects(nil, 2); got != nil {
		t.Errorf("MergeRects(nil) = %v", got)
	}
}

func TestZeroTimestampUsesClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := New(WithClock(func() time.Time { return now }))
	e.SetPage(testPage(0))

	p := geom.Pt(15, 15) // inside "alpha"
	e.PointerDown(p, time.Time{})
	e.PointerUp(p)

	now = now.Add(100 * time.Millisecond)
	e.PointerDown(p, time.Time{})
	if got := selectedText(e.Selection()); got != "alpha" {
		t.Errorf("presses 100ms apart on the clock: selection = %q, want a double click", got)
	}

	e.Clear()
	e.PointerDown(p, time.Time{})
	e.PointerUp(p)
	now = now.Add(time.Second)
	e.PointerDown(p, time.Time{})
	if len(e.Selection()) != 0 {
		t.Error("presses a second apart on the clock should not double click")
	}
}

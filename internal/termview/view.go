// Package termview draws the page strip in a terminal.
//
// Each cell shows two vertically stacked pixels using the upper half block
// glyph: the foreground colour is the top pixel and the background colour
// the bottom one. A screen of W×H cells is therefore a W×2(H-1) pixel
// viewport; the last row is the status line.
package termview

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/pageview/internal/annotation"
	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/scheduler"
)

const halfBlock = '▀'

// Colours of the page strip.
var (
	BackgroundColor = color.RGBA{R: 40, G: 40, B: 46, A: 255}
	LoadingColor    = color.RGBA{R: 220, G: 220, B: 220, A: 255}
	FailedColor     = color.RGBA{R: 235, G: 190, B: 190, A: 255}
	SelectionColor  = color.RGBA{R: 60, G: 120, B: 230, A: 255}
)

// Frame is everything that changes between draws.
type Frame struct {
	Viewport scheduler.Viewport

	// Highlights are selection rectangles in page units on HighlightPage.
	Highlights    []geom.Rect
	HighlightPage int

	Status Status
}

// overlay is a page bitmap with annotations painted on a copy.
type overlay struct {
	src *image.RGBA
	img *image.RGBA
}

// View draws pages from a PageStore. It is used from the UI goroutine only.
type View struct {
	pages       []geom.Size
	gap         float64
	store       *scheduler.PageStore
	annotations annotation.Store
	overlays    map[int]overlay
}

// NewView creates a view of pages laid out with gap pixels between them.
// annotations may be nil.
func NewView(pages []geom.Size, gap float64, store *scheduler.PageStore, annotations annotation.Store) *View {
	return &View{
		pages:       pages,
		gap:         gap,
		store:       store,
		annotations: annotations,
		overlays:    make(map[int]overlay),
	}
}

// SetPages replaces the page sizes, for example after the document changed.
func (v *View) SetPages(pages []geom.Size) {
	v.pages = pages
	v.overlays = make(map[int]overlay)
}

// PageCount returns the number of pages.
func (v *View) PageCount() int {
	return len(v.pages)
}

// Invalidate drops the annotated copy of page, after its annotations changed.
func (v *View) Invalidate(page int) {
	delete(v.overlays, page)
}

// ViewportFor returns the pixel viewport of a screen of cols×rows cells.
func ViewportFor(cols, rows int, scroll, zoom float64) scheduler.Viewport {
	return scheduler.Viewport{
		ScrollOffset: scroll,
		Width:        float64(cols),
		Height:       float64(2 * max(rows-1, 0)),
		Zoom:         zoom,
	}
}

// FitWidthZoom returns the zoom at which the widest page spans cols pixels.
func (v *View) FitWidthZoom(cols int) float64 {
	widest := 0.0
	for _, p := range v.pages {
		widest = math.Max(widest, p.Width)
	}
	if widest <= 0 || cols <= 0 {
		return 1
	}
	return float64(cols) / widest
}

// ContentHeight returns the strip height in pixels at zoom.
func (v *View) ContentHeight(zoom float64) float64 {
	_, total := scheduler.PageOffsets(v.pages, zoom, v.gap)
	return total
}

// PageTop returns the strip coordinate of the top of page at zoom.
func (v *View) PageTop(page int, zoom float64) float64 {
	tops, _ := scheduler.PageOffsets(v.pages, zoom, v.gap)
	if page < 0 || page >= len(tops) {
		return 0
	}
	return tops[page]
}

// MapCell converts a screen cell to a point on a page, in page units. The
// point is the centre of the cell. ok is false over the gap, the margins
// or the status line.
func (v *View) MapCell(vp scheduler.Viewport, col, row int) (page int, pt geom.Point, ok bool) {
	if float64(2*row) >= vp.Height || col < 0 || row < 0 {
		return 0, geom.Point{}, false
	}
	zoom := vp.EffectiveZoom()
	tops, _ := scheduler.PageOffsets(v.pages, zoom, v.gap)

	x := float64(col) + 0.5
	y := vp.ScrollOffset + float64(2*row) + 1
	page, px, py, ok := v.locate(tops, zoom, vp.Width, x, y)
	if !ok {
		return 0, geom.Point{}, false
	}
	return page, geom.Pt(px/zoom, py/zoom), true
}

// CurrentPage returns the page at the vertical centre of the viewport.
func (v *View) CurrentPage(vp scheduler.Viewport) int {
	if len(v.pages) == 0 {
		return 0
	}
	tops, _ := scheduler.PageOffsets(v.pages, vp.EffectiveZoom(), v.gap)
	centre := vp.ScrollOffset + vp.Height/2
	i := sort.Search(len(tops), func(i int) bool { return tops[i] > centre }) - 1
	return max(i, 0)
}

// Draw renders the frame onto screen. It does not call Show.
func (v *View) Draw(screen tcell.Screen, f Frame) {
	cols, rows := screen.Size()
	if cols <= 0 || rows <= 0 {
		return
	}
	vp := f.Viewport
	zoom := vp.EffectiveZoom()
	tops, _ := scheduler.PageOffsets(v.pages, zoom, v.gap)

	sampler := v.newSampler(tops, zoom, float64(cols), f.HighlightPage, f.Highlights)

	for row := 0; row < rows-1; row++ {
		y := vp.ScrollOffset + float64(2*row)
		for col := 0; col < cols; col++ {
			x := float64(col)
			top := sampler.at(x, y)
			bottom := sampler.at(x, y+1)
			style := tcell.StyleDefault.Foreground(toColor(top)).Background(toColor(bottom))
			screen.SetContent(col, row, halfBlock, nil, style)
		}
	}

	v.drawLabels(screen, vp, tops, cols, rows-1)
	drawStatus(screen, f.Status, cols, rows-1)
}

// drawLabels writes a caption over pages that are loading or failed.
func (v *View) drawLabels(screen tcell.Screen, vp scheduler.Viewport, tops []float64, cols, rows int) {
	zoom := vp.EffectiveZoom()
	for _, i := range scheduler.VisiblePages(v.pages, vp, v.gap) {
		st, loaded := v.store.State(i)
		var label string
		var fg color.RGBA
		switch {
		case !loaded:
			label = fmt.Sprintf("page %d", i+1)
			fg = color.RGBA{R: 90, G: 90, B: 90, A: 255}
		case st.Failed():
			label = fmt.Sprintf("page %d: %v", i+1, st.Err)
			fg = color.RGBA{R: 160, G: 20, B: 20, A: 255}
		default:
			continue
		}

		pageTop := tops[i]
		pageBottom := pageTop + v.pages[i].Height*zoom
		mid := (math.Max(pageTop, vp.ScrollOffset) + math.Min(pageBottom, vp.ScrollOffset+vp.Height)) / 2
		row := int((mid - vp.ScrollOffset) / 2)
		if row < 0 || row >= rows {
			continue
		}

		left := pageLeft(v.pages[i].Width*zoom, float64(cols))
		width := int(v.pages[i].Width * zoom)
		label = runewidth.Truncate(label, max(width, 0), "…")
		col := max(int(left)+(width-runewidth.StringWidth(label))/2, 0)
		bg := FailedColor
		if !loaded {
			bg = LoadingColor
		}
		drawText(screen, col, row, cols, label, tcell.StyleDefault.Foreground(toColor(fg)).Background(toColor(bg)))
	}
}

// locate finds the page under strip point (x, y) and returns the point
// relative to the page's top-left corner, in pixels.
func (v *View) locate(tops []float64, zoom, width, x, y float64) (page int, px, py float64, ok bool) {
	i := sort.Search(len(tops), func(i int) bool { return tops[i] > y }) - 1
	if i < 0 {
		return 0, 0, 0, false
	}
	size := v.pages[i]
	py = y - tops[i]
	if py >= size.Height*zoom {
		return 0, 0, 0, false
	}
	left := pageLeft(size.Width*zoom, width)
	px = x - left
	if px < 0 || px >= size.Width*zoom {
		return 0, 0, 0, false
	}
	return i, px, py, true
}

// bitmapFor returns the page bitmap with its annotations painted on.
func (v *View) bitmapFor(page int, src *image.RGBA) *image.RGBA {
	if v.annotations == nil || src == nil {
		return src
	}
	if o, ok := v.overlays[page]; ok && o.src == src {
		return o.img
	}

	as := v.annotations.ForPage(page)
	if len(as) == 0 {
		v.overlays[page] = overlay{src: src, img: src}
		return src
	}

	img := image.NewRGBA(src.Bounds())
	copy(img.Pix, src.Pix)
	scale := float64(src.Bounds().Dx()) / v.pages[page].Width
	if err := annotation.PaintAll(img, as, scale); err != nil {
		img = src
	}
	v.overlays[page] = overlay{src: src, img: img}
	return img
}

// sampler resolves strip pixels to colours for one draw.
type sampler struct {
	v          *View
	tops       []float64
	zoom       float64
	width      float64
	hlPage     int
	highlights []geom.Rect

	page   int
	state  scheduler.PageState
	loaded bool
	bitmap *image.RGBA
}

func (v *View) newSampler(tops []float64, zoom, width float64, hlPage int, highlights []geom.Rect) *sampler {
	return &sampler{v: v, tops: tops, zoom: zoom, width: width, hlPage: hlPage, highlights: highlights, page: -1}
}

func (s *sampler) at(x, y float64) color.RGBA {
	page, px, py, ok := s.v.locate(s.tops, s.zoom, s.width, x, y)
	if !ok {
		return BackgroundColor
	}
	if page != s.page {
		s.page = page
		s.state, s.loaded = s.v.store.State(page)
		s.bitmap = nil
		if s.loaded && s.state.Bitmap != nil {
			s.bitmap = s.v.bitmapFor(page, s.state.Bitmap)
		}
	}

	var c color.RGBA
	switch {
	case !s.loaded:
		c = LoadingColor
	case s.bitmap == nil:
		c = FailedColor
	default:
		c = sampleBitmap(s.bitmap, px/(s.v.pages[page].Width*s.zoom), py/(s.v.pages[page].Height*s.zoom))
	}

	if page == s.hlPage && len(s.highlights) > 0 {
		pt := geom.Pt(px/s.zoom, py/s.zoom)
		for _, r := range s.highlights {
			if r.Contains(pt) {
				return blend(c, SelectionColor)
			}
		}
	}
	return c
}

// sampleBitmap returns the pixel at relative position (u, v) in [0,1).
// The bitmap may be at a different zoom than the one being drawn.
func sampleBitmap(b *image.RGBA, u, v float64) color.RGBA {
	bounds := b.Bounds()
	x := bounds.Min.X + clamp(int(u*float64(bounds.Dx())), 0, bounds.Dx()-1)
	y := bounds.Min.Y + clamp(int(v*float64(bounds.Dy())), 0, bounds.Dy()-1)
	c := b.RGBAAt(x, y)
	if c.A == 255 {
		return c
	}
	// Composite premultiplied pixels over white paper.
	pad := 255 - c.A
	return color.RGBA{R: c.R + pad, G: c.G + pad, B: c.B + pad, A: 255}
}

// blend mixes c halfway toward tint.
func blend(c, tint color.RGBA) color.RGBA {
	return color.RGBA{
		R: uint8((uint16(c.R) + uint16(tint.R)) / 2),
		G: uint8((uint16(c.G) + uint16(tint.G)) / 2),
		B: uint8((uint16(c.B) + uint16(tint.B)) / 2),
		A: 255,
	}
}

func pageLeft(pageWidth, viewWidth float64) float64 {
	return math.Floor((viewWidth - pageWidth) / 2)
}

func toColor(c color.RGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// drawText writes s at (col, row) and returns the column after it.
func drawText(screen tcell.Screen, col, row, limit int, s string, style tcell.Style) int {
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > limit {
			break
		}
		screen.SetContent(col, row, r, nil, style)
		col += w
	}
	return col
}

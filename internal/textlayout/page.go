package textlayout

import (
	"math"
	"sort"
	"strings"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/spatial"
)

// PageText is the spatially indexed text of one page.
//
// It is built off the UI goroutine when a page's geometry is loaded and is
// immutable afterwards. A change of geometry produces a new PageText; the
// old one is discarded along with its grids.
type PageText struct {
	pageIndex int
	size      geom.Size
	hierarchy Hierarchy
	chars     []*CharBox
	charGrid  *spatial.Grid[*CharBox]
	wordGrid  *spatial.Grid[*Word]
}

// NewPageText groups chars and builds the character and word grids for a
// page of the given size.
func NewPageText(pageIndex int, size geom.Size, chars []CharBox) *PageText {
	h := Build(chars)

	pt := &PageText{
		pageIndex: pageIndex,
		size:      size,
		hierarchy: h,
		charGrid:  spatial.New[*CharBox](size.Width, size.Height, spatial.CharCellSize),
		wordGrid:  spatial.New[*Word](size.Width, size.Height, spatial.WordCellSize),
	}

	for _, w := range h.Words {
		pt.wordGrid.Insert(w, w.Box)
		for i := range w.Chars {
			c := &w.Chars[i]
			pt.chars = append(pt.chars, c)
			pt.charGrid.Insert(c, c.Box)
		}
	}
	return pt
}

// PageIndex returns the page this text belongs to.
func (p *PageText) PageIndex() int {
	return p.pageIndex
}

// Size returns the page size the grids were built for.
func (p *PageText) Size() geom.Size {
	return p.size
}

// Lines returns the grouped lines.
func (p *PageText) Lines() []*Line {
	return p.hierarchy.Lines
}

// Words returns all words in line order.
func (p *PageText) Words() []*Word {
	return p.hierarchy.Words
}

// CharCount returns the number of indexed characters.
func (p *PageText) CharCount() int {
	return len(p.chars)
}

// CharAt returns the character whose box contains pt.
// Grid candidates are re-checked for exact containment.
func (p *PageText) CharAt(pt geom.Point) (*CharBox, bool) {
	for _, c := range p.charGrid.QueryPoint(pt) {
		if c.Box.Contains(pt) {
			return c, true
		}
	}
	return nil, false
}

// WordAt returns the word whose bounding box contains pt.
func (p *PageText) WordAt(pt geom.Point) (*Word, bool) {
	for _, w := range p.wordGrid.QueryPoint(pt) {
		if w.Box.Contains(pt) {
			return w, true
		}
	}
	return nil, false
}

// WordsIn returns the words whose bounding boxes intersect r, ordered top
// to bottom, then left to right.
func (p *PageText) WordsIn(r geom.Rect) []*Word {
	var out []*Word
	for _, w := range p.wordGrid.QueryRect(r) {
		if w.Box.Intersects(r) {
			out = append(out, w)
		}
	}
	SortReadingOrder(out)
	return out
}

// Text returns the page text with one line per grouped line.
func (p *PageText) Text() string {
	lines := make([]string, len(p.hierarchy.Lines))
	for i, l := range p.hierarchy.Lines {
		lines[i] = l.Text()
	}
	return strings.Join(lines, "\n")
}

// SortReadingOrder sorts words top to bottom, then left to right.
// Words in the same line bucket compare by left edge.
func SortReadingOrder(words []*Word) {
	sort.SliceStable(words, func(i, j int) bool {
		bi := lineBucket(words[i].Box.Top)
		bj := lineBucket(words[j].Box.Top)
		if bi != bj {
			return bi < bj
		}
		return words[i].Box.Left < words[j].Box.Left
	})
}

func lineBucket(top float64) int {
	return int(math.Floor(top / LineBucketHeight))
}

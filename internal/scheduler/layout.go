package scheduler

import (
	"math"
	"sort"

	"github.com/dshills/pageview/internal/geom"
)

// PageSize is the unscaled size of one page in page units.
type PageSize = geom.Size

// Viewport is the visible window onto the vertical page strip.
type Viewport struct {
	// ScrollOffset is the strip coordinate at the top edge of the window.
	ScrollOffset float64

	// Width and Height are the window extent in pixels.
	Width  float64
	Height float64

	// Zoom is a ratio; 1 renders one pixel per page unit.
	Zoom float64
}

// EffectiveZoom returns Zoom, or 1 if Zoom is not positive.
func (v Viewport) EffectiveZoom() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

// PageOffsets returns the strip coordinate of the top of every page and the
// total strip height. Each page occupies height×zoom followed by gap.
func PageOffsets(pages []PageSize, zoom, gap float64) (tops []float64, total float64) {
	tops = make([]float64, len(pages))
	y := 0.0
	for i, p := range pages {
		tops[i] = y
		y += p.Height*zoom + gap
	}
	return tops, y
}

// VisiblePages returns the indices of pages whose [top, bottom) interval
// intersects [ScrollOffset, ScrollOffset+Height). If nothing intersects and
// the document has pages, it returns page 0.
func VisiblePages(pages []PageSize, vp Viewport, gap float64) []int {
	if len(pages) == 0 {
		return nil
	}

	zoom := vp.EffectiveZoom()
	viewTop := vp.ScrollOffset
	viewBottom := vp.ScrollOffset + vp.Height

	var visible []int
	y := 0.0
	for i, p := range pages {
		top := y
		bottom := top + p.Height*zoom
		if top >= viewBottom {
			break
		}
		if bottom > viewTop && top < viewBottom {
			visible = append(visible, i)
		}
		y = bottom + gap
	}

	if len(visible) == 0 {
		return []int{0}
	}
	return visible
}

// WorkingSet expands visible by buffer pages on each side, clamped to
// [0, count). The result is sorted and free of duplicates.
func WorkingSet(visible []int, buffer, count int) []int {
	if count <= 0 {
		return nil
	}
	if buffer < 0 {
		buffer = 0
	}

	in := make([]bool, count)
	for _, v := range visible {
		lo := max(v-buffer, 0)
		hi := min(v+buffer, count-1)
		for i := lo; i <= hi; i++ {
			in[i] = true
		}
	}

	var set []int
	for i, ok := range in {
		if ok {
			set = append(set, i)
		}
	}
	return set
}

// UnloadCandidates returns the loaded pages outside keep whose distance to
// the nearest kept page exceeds threshold, in ascending order. With an empty
// keep set every loaded page is a candidate.
func UnloadCandidates(loaded, keep []int, threshold int) []int {
	kept := make([]int, len(keep))
	copy(kept, keep)
	sort.Ints(kept)

	var out []int
	for _, page := range loaded {
		d, ok := nearestDistance(kept, page)
		if ok && d == 0 {
			continue
		}
		if !ok || d > threshold {
			out = append(out, page)
		}
	}
	sort.Ints(out)
	return out
}

// nearestDistance returns the minimum |page - k| over sorted kept.
func nearestDistance(kept []int, page int) (int, bool) {
	if len(kept) == 0 {
		return 0, false
	}
	i := sort.SearchInts(kept, page)
	best := math.MaxInt
	if i < len(kept) {
		best = kept[i] - page
	}
	if i > 0 {
		best = min(best, page-kept[i-1])
	}
	return best, true
}

// RenderOrder sorts pages by distance to firstVisible, closest first.
// Equal distances keep ascending page order.
func RenderOrder(pages []int, firstVisible int) []int {
	out := make([]int, len(pages))
	copy(out, pages)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := abs(out[i]-firstVisible), abs(out[j]-firstVisible)
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out
}

// TargetPixels returns the bitmap size for a page at zoom, at least 1×1.
func TargetPixels(size PageSize, zoom float64) (w, h int) {
	w = int(math.Ceil(size.Width * zoom))
	h = int(math.Ceil(size.Height * zoom))
	return max(w, 1), max(h, 1)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package selection

import (
	"math"
	"sort"

	"github.com/dshills/pageview/internal/geom"
)

// MergeRects coalesces horizontally adjacent rectangles on the same line to
// reduce the number of highlight primitives.
//
// Rectangles are sorted by (top, left). A run is extended while the next
// rectangle has a top and height within tol of the run's and starts no
// further than tol past the run's right edge. The input is not modified.
func MergeRects(rects []geom.Rect, tol float64) []geom.Rect {
	if len(rects) == 0 {
		return nil
	}

	sorted := make([]geom.Rect, len(rects))
	copy(sorted, rects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top != sorted[j].Top {
			return sorted[i].Top < sorted[j].Top
		}
		return sorted[i].Left < sorted[j].Left
	})

	out := make([]geom.Rect, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		sameLine := math.Abs(next.Top-cur.Top) <= tol && math.Abs(next.Height()-cur.Height()) <= tol
		adjacent := next.Left <= cur.Right+tol
		if sameLine && adjacent {
			cur = cur.Union(next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

package spatial

import (
	"math"

	"github.com/dshills/pageview/internal/geom"
)

// Default cell sizes for text indexing, in page units.
const (
	CharCellSize = 30.0
	WordCellSize = 50.0
)

// Grid is a uniform-grid spatial index.
type Grid[T comparable] struct {
	width    float64
	height   float64
	cellSize float64
	cols     int
	rows     int
	cells    [][]T
	count    int
}

// New creates a grid covering width × height with square cells of cellSize.
// Non-positive dimensions produce a single-cell grid.
func New[T comparable](width, height, cellSize float64) *Grid[T] {
	if cellSize <= 0 {
		cellSize = CharCellSize
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &Grid[T]{
		width:    width,
		height:   height,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]T, cols*rows),
	}
}

// Bounds returns the area covered by the grid.
func (g *Grid[T]) Bounds() geom.Rect {
	return geom.R(0, 0, g.width, g.height)
}

// CellSize returns the bucket edge length.
func (g *Grid[T]) CellSize() float64 {
	return g.cellSize
}

// Dimensions returns the number of bucket columns and rows.
func (g *Grid[T]) Dimensions() (cols, rows int) {
	return g.cols, g.rows
}

// Len returns the number of Insert calls since construction or the last Clear.
func (g *Grid[T]) Len() int {
	return g.count
}

// Insert adds item to every bucket overlapped by box, clamped to the grid.
func (g *Grid[T]) Insert(item T, box geom.Rect) {
	c0, r0, c1, r1 := g.span(box)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			idx := r*g.cols + c
			g.cells[idx] = append(g.cells[idx], item)
		}
	}
	g.count++
}

// QueryPoint returns the items in the bucket containing p.
// The result is approximate: callers must re-check exact containment.
// Points outside the grid return nil. The returned slice must not be modified.
func (g *Grid[T]) QueryPoint(p geom.Point) []T {
	if p.X < 0 || p.Y < 0 || p.X > g.width || p.Y > g.height {
		return nil
	}
	c := g.clampCol(p.X)
	r := g.clampRow(p.Y)
	return g.cells[r*g.cols+c]
}

// QueryRect returns the de-duplicated union of items in every bucket that
// region overlaps, in row-major bucket order of first appearance.
func (g *Grid[T]) QueryRect(region geom.Rect) []T {
	if region.Right < 0 || region.Bottom < 0 || region.Left > g.width || region.Top > g.height {
		return nil
	}

	c0, r0, c1, r1 := g.span(region)
	seen := make(map[T]struct{})
	var out []T
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			for _, item := range g.cells[r*g.cols+c] {
				if _, dup := seen[item]; dup {
					continue
				}
				seen[item] = struct{}{}
				out = append(out, item)
			}
		}
	}
	return out
}

// Clear empties all buckets without changing the grid geometry.
func (g *Grid[T]) Clear() {
	for i := range g.cells {
		g.cells[i] = nil
	}
	g.count = 0
}

// span returns the inclusive bucket range covered by box.
func (g *Grid[T]) span(box geom.Rect) (c0, r0, c1, r1 int) {
	left, right := box.Left, box.Right
	if left > right {
		left, right = right, left
	}
	top, bottom := box.Top, box.Bottom
	if top > bottom {
		top, bottom = bottom, top
	}
	return g.clampCol(left), g.clampRow(top), g.clampCol(right), g.clampRow(bottom)
}

func (g *Grid[T]) clampCol(x float64) int {
	return clamp(int(math.Floor(x/g.cellSize)), 0, g.cols-1)
}

func (g *Grid[T]) clampRow(y float64) int {
	return clamp(int(math.Floor(y/g.cellSize)), 0, g.rows-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

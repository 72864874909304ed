// Package geom provides page-space geometry primitives.
//
// Page space has its origin at the top-left corner of a page with Y
// increasing downward. Units are whatever the geometry source reports
// (typically points for PDF-derived sources, pixels for image sources).
package geom

import "math"

// Point is a location in page space.
type Point struct {
	X float64
	Y float64
}

// Pt creates a point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Scale returns p multiplied by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned rectangle in page space.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// R creates a rectangle from its edges.
func R(left, top, right, bottom float64) Rect {
	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

// RectFromSize creates a rectangle from an origin and a size.
func RectFromSize(left, top, width, height float64) Rect {
	return Rect{Left: left, Top: top, Right: left + width, Bottom: top + height}
}

// RectFromPoints returns the normalized rectangle spanning a and b.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		Left:   math.Min(a.X, b.X),
		Top:    math.Min(a.Y, b.Y),
		Right:  math.Max(a.X, b.X),
		Bottom: math.Max(a.Y, b.Y),
	}
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 {
	return r.Right - r.Left
}

// Height returns the vertical extent.
func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// Valid reports whether the rectangle has positive area.
func (r Rect) Valid() bool {
	return r.Right > r.Left && r.Bottom > r.Top
}

// Empty reports whether the rectangle is the zero value.
func (r Rect) Empty() bool {
	return r == Rect{}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Intersects reports whether r and o overlap, touching edges included.
// A degenerate rectangle (a drag that has not moved yet) still intersects
// anything it touches.
func (r Rect) Intersects(o Rect) bool {
	return r.Left <= o.Right && o.Left <= r.Right && r.Top <= o.Bottom && o.Top <= r.Bottom
}

// Union returns the smallest rectangle containing both r and o.
// The zero rectangle acts as the identity.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		Left:   math.Min(r.Left, o.Left),
		Top:    math.Min(r.Top, o.Top),
		Right:  math.Max(r.Right, o.Right),
		Bottom: math.Max(r.Bottom, o.Bottom),
	}
}

// Scale returns r with every edge multiplied by f.
func (r Rect) Scale(f float64) Rect {
	return Rect{Left: r.Left * f, Top: r.Top * f, Right: r.Right * f, Bottom: r.Bottom * f}
}

// Size is a width/height pair.
type Size struct {
	Width  float64
	Height float64
}

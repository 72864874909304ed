// Package spatial provides a uniform-grid spatial index over axis-aligned
// boxes.
//
// A Grid divides a fixed page area into square buckets. Items are inserted
// with a bounding box and referenced from every bucket the box overlaps,
// which makes point lookups O(1) and region lookups proportional to the
// number of buckets covered. The grid only holds references; it never
// copies or owns the items.
//
//	g := spatial.New[*textlayout.Word](size.Width, size.Height, 20)
//	g.Insert(word, word.Box)
//	hits := g.QueryPoint(geom.Pt(x, y))
//
// A Grid is built once per page and is not safe for concurrent mutation.
// Concurrent queries on a grid that is no longer being modified are safe.
package spatial

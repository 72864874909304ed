// Package textlayout groups raw character boxes into words and lines and
// indexes them spatially for hit testing and selection.
package textlayout

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/pageview/internal/geom"
)

// Grouping heuristics, in page units.
const (
	// MaxGlyphExtent discards boxes whose width or height reaches this size.
	// Such boxes are extraction artifacts, not glyphs.
	MaxGlyphExtent = 200.0

	// LineBucketHeight quantizes a character's top edge into a line bucket.
	LineBucketHeight = 10.0

	// MinWordGap is the smallest gap that always splits words.
	MinWordGap = 5.0

	// WordGapFactor scales the previous character's width into a gap threshold.
	WordGapFactor = 0.5
)

// CharBox is a single glyph and its page-space bounding box.
type CharBox struct {
	Char rune
	Box  geom.Rect
}

// Word is a run of characters on one line, left to right.
type Word struct {
	Chars []CharBox
	Box   geom.Rect
}

// Text returns the word's characters as a string.
func (w *Word) Text() string {
	var b strings.Builder
	for _, c := range w.Chars {
		b.WriteRune(c.Char)
	}
	return b.String()
}

// Line is an ordered run of words sharing a line bucket.
type Line struct {
	Words []*Word
	Box   geom.Rect
}

// Text returns the line's words separated by single spaces.
func (l *Line) Text() string {
	parts := make([]string, len(l.Words))
	for i, w := range l.Words {
		parts[i] = w.Text()
	}
	return strings.Join(parts, " ")
}

// Hierarchy is the result of grouping a page's characters.
type Hierarchy struct {
	// Lines in ascending bucket order.
	Lines []*Line

	// Words flattened in line order, for spatial indexing.
	Words []*Word
}

// Usable reports whether a character box takes part in text grouping.
func Usable(c CharBox) bool {
	if unicode.IsSpace(c.Char) {
		return false
	}
	if !c.Box.Valid() {
		return false
	}
	return c.Box.Width() < MaxGlyphExtent && c.Box.Height() < MaxGlyphExtent
}

// Build groups unordered character boxes into lines and words.
// The grouping is deterministic for a given input set.
func Build(chars []CharBox) Hierarchy {
	buckets := make(map[int][]CharBox)
	for _, c := range chars {
		if !Usable(c) {
			continue
		}
		key := lineBucket(c.Box.Top)
		buckets[key] = append(buckets[key], c)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var h Hierarchy
	for _, k := range keys {
		line := buildLine(buckets[k])
		if line == nil {
			continue
		}
		h.Lines = append(h.Lines, line)
		h.Words = append(h.Words, line.Words...)
	}
	return h
}

// buildLine splits one bucket into words. Returns nil for an empty bucket.
func buildLine(chars []CharBox) *Line {
	sort.SliceStable(chars, func(i, j int) bool {
		return chars[i].Box.Left < chars[j].Box.Left
	})

	line := &Line{}
	var current *Word
	var prev CharBox

	flush := func() {
		if current != nil && len(current.Chars) > 0 {
			line.Words = append(line.Words, current)
			line.Box = line.Box.Union(current.Box)
		}
		current = nil
	}

	for _, c := range chars {
		if current == nil || c.Box.Left-prev.Box.Right > wordGap(prev) {
			flush()
			current = &Word{}
		}
		current.Chars = append(current.Chars, c)
		current.Box = current.Box.Union(c.Box)
		prev = c
	}
	flush()

	if len(line.Words) == 0 {
		return nil
	}
	return line
}

// wordGap returns the gap after prev that starts a new word.
func wordGap(prev CharBox) float64 {
	return math.Max(prev.Box.Width()*WordGapFactor, MinWordGap)
}

package textlayout

import (
	"testing"

	"github.com/dshills/pageview/internal/geom"
)

// twoLinePage builds "Hello world" over "second line".
func twoLinePage() *PageText {
	var chars []CharBox
	add := func(s string, left, top float64) {
		x := left
		for _, r := range s {
			if r != ' ' {
				chars = append(chars, cb(r, x, top, x+6, top+10))
			}
			x += 6
		}
	}
	add("Hello", 10, 10)
	add("world", 52, 10)
	add("second", 10, 40)
	add("line", 64, 40)
	return NewPageText(3, geom.Size{Width: 200, Height: 100}, chars)
}

func TestPageTextIndexes(t *testing.T) {
	pt := twoLinePage()

	if pt.PageIndex() != 3 {
		t.Errorf("PageIndex = %d", pt.PageIndex())
	}
	if len(pt.Lines()) != 2 {
		t.Fatalf("lines = %d, want 2", len(pt.Lines()))
	}
	if len(pt.Words()) != 4 {
		t.Fatalf("words = %v", wordTexts(pt.Words()))
	}
	if pt.CharCount() != 20 {
		t.Errorf("CharCount = %d, want 20", pt.CharCount())
	}
	if got := pt.Text(); got != "Hello world\nsecond line" {
		t.Errorf("Text = %q", got)
	}
}

func TestPageTextCharAtRechecksContainment(t *testing.T) {
	pt := twoLinePage()

	c, ok := pt.CharAt(geom.Pt(13, 15))
	if !ok || c.Char != 'H' {
		t.Fatalf("CharAt(13,15) = %v, %v; want H", c, ok)
	}

	// Same grid cell as "Hello", but between the lines.
	if _, ok := pt.CharAt(geom.Pt(13, 25)); ok {
		t.Error("CharAt between lines should miss")
	}
}

func TestPageTextWordAt(t *testing.T) {
	pt := twoLinePage()

	w, ok := pt.WordAt(geom.Pt(60, 12))
	if !ok || w.Text() != "world" {
		t.Fatalf("WordAt = %v, %v; want world", w, ok)
	}
	if _, ok := pt.WordAt(geom.Pt(45, 12)); ok {
		t.Error("WordAt in the gap between words should miss")
	}
}

func TestPageTextWordsInReadingOrder(t *testing.T) {
	pt := twoLinePage()

	words := pt.WordsIn(geom.R(0, 0, 200, 100))
	got := wordTexts(words)
	want := []string{"Hello", "world", "second", "line"}
	if len(got) != len(want) {
		t.Fatalf("WordsIn = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("WordsIn = %v, want %v", got, want)
		}
	}

	// A thin region touching only the second word of line one.
	words = pt.WordsIn(geom.R(55, 12, 56, 13))
	if len(words) != 1 || words[0].Text() != "world" {
		t.Errorf("WordsIn(thin) = %v", wordTexts(words))
	}
}

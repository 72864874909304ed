// Package document defines the boundary between the viewer core and the
// component that owns a document's content.
//
// A Source rasterizes pages and reports glyph geometry. The viewer never
// parses documents itself; it asks a Source for pixels at a target size and
// for the character boxes of a page in page coordinates.
package document

import (
	"context"
	"image"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/textlayout"
)

// Source provides page content for one open document.
//
// Implementations must be safe for concurrent use: the render scheduler calls
// RenderPage and CharacterBoxes from several goroutines at once.
type Source interface {
	// ID returns a stable identifier for the document. Cache keys use it.
	ID() string

	// PageCount returns the number of pages.
	PageCount() int

	// PageSize returns the unscaled size of page i in page units.
	PageSize(i int) (geom.Size, error)

	// RenderPage rasterizes page i to a w×h bitmap.
	// It returns ctx.Err() if the context is cancelled.
	RenderPage(ctx context.Context, i, w, h int) (*image.RGBA, error)

	// CharacterBoxes returns the glyphs of page i with page-space boxes.
	// A page without text returns an empty slice and no error.
	CharacterBoxes(ctx context.Context, i int) ([]textlayout.CharBox, error)
}

// PageSizes collects the sizes of every page in src.
// Pages whose size cannot be read are reported with a zero size.
func PageSizes(src Source) []geom.Size {
	n := src.PageCount()
	sizes := make([]geom.Size, n)
	for i := 0; i < n; i++ {
		if sz, err := src.PageSize(i); err == nil {
			sizes[i] = sz
		}
	}
	return sizes
}

// CheckPage returns a *PageError wrapping ErrPageNotFound if i is not a
// page of src.
func CheckPage(src Source, op string, i int) error {
	if i < 0 || i >= src.PageCount() {
		return NewPageError(op, i, ErrPageNotFound)
	}
	return nil
}

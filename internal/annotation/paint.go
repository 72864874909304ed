package annotation

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/dshills/pageview/internal/geom"
)

// Colors used when painting.
var (
	HighlightColor = color.NRGBA{R: 255, G: 220, B: 0, A: 96}
	UnderlineColor = color.NRGBA{R: 200, G: 30, B: 30, A: 255}
	NoteColor      = color.NRGBA{R: 30, G: 110, B: 220, A: 255}
)

// Paint draws a onto dst, a bitmap of the page rendered at scale pixels per
// page unit. Pixels outside the annotation's rectangles are left untouched.
func Paint(dst *image.RGBA, a Annotation, scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("invalid scale %v", scale)
	}

	for _, r := range a.Rects {
		px := pixelRect(r, scale).Intersect(dst.Bounds())
		if px.Empty() {
			continue
		}

		switch a.Kind {
		case KindHighlight:
			draw.Draw(dst, px, image.NewUniform(HighlightColor), image.Point{}, draw.Over)
		case KindUnderline:
			thick := max(1, int(math.Round(scale)))
			line := image.Rect(px.Min.X, px.Max.Y-thick, px.Max.X, px.Max.Y).Intersect(px)
			draw.Draw(dst, line, image.NewUniform(UnderlineColor), image.Point{}, draw.Src)
		case KindNote:
			outline(dst, px, NoteColor)
		default:
			return fmt.Errorf("%w: %d", ErrUnknownKind, int(a.Kind))
		}
	}
	return nil
}

// PaintAll paints every annotation in order.
func PaintAll(dst *image.RGBA, as []Annotation, scale float64) error {
	for _, a := range as {
		if err := Paint(dst, a, scale); err != nil {
			return fmt.Errorf("annotation %s: %w", a.ID, err)
		}
	}
	return nil
}

// pixelRect converts a page-unit rectangle to the covering pixel rectangle.
func pixelRect(r geom.Rect, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Left*scale)),
		int(math.Floor(r.Top*scale)),
		int(math.Ceil(r.Right*scale)),
		int(math.Ceil(r.Bottom*scale)),
	)
}

// outline draws a one pixel border just inside r.
func outline(dst *image.RGBA, r image.Rectangle, c color.NRGBA) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

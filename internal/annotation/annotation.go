// Package annotation holds page annotations made from text selections and
// paints them over page bitmaps.
//
// Annotations are in page units. Persistence is behind the Store interface;
// MemoryStore keeps them for the lifetime of the process.
package annotation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/pageview/internal/geom"
)

// Kind is the closed set of annotation variants.
type Kind int

const (
	// KindHighlight tints the covered text.
	KindHighlight Kind = iota

	// KindUnderline draws a line under each rectangle.
	KindUnderline

	// KindNote outlines the rectangles and carries a text note.
	KindNote
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindHighlight:
		return "highlight"
	case KindUnderline:
		return "underline"
	case KindNote:
		return "note"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "highlight":
		return KindHighlight, nil
	case "underline":
		return KindUnderline, nil
	case "note":
		return KindNote, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var (
	// ErrUnknownKind is returned for a Kind outside the defined set.
	ErrUnknownKind = errors.New("unknown annotation kind")

	// ErrNoRects is returned when an annotation would cover nothing.
	ErrNoRects = errors.New("annotation has no rectangles")

	// ErrEmptyNote is returned for a note without text.
	ErrEmptyNote = errors.New("note annotation has no text")
)

// Annotation marks a region of one page.
type Annotation struct {
	ID      string
	Page    int
	Kind    Kind
	Rects   []geom.Rect
	Note    string
	Created time.Time
}

// Bounds returns the union of the annotation's rectangles.
func (a Annotation) Bounds() geom.Rect {
	var b geom.Rect
	for _, r := range a.Rects {
		b = b.Union(r)
	}
	return b
}

// FromSelection builds an annotation from the merged highlight rectangles
// of a selection. Invalid rectangles are dropped.
func FromSelection(page int, kind Kind, rects []geom.Rect, note string) (Annotation, error) {
	switch kind {
	case KindHighlight, KindUnderline:
	case KindNote:
		if note == "" {
			return Annotation{}, ErrEmptyNote
		}
	default:
		return Annotation{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	kept := make([]geom.Rect, 0, len(rects))
	for _, r := range rects {
		if r.Valid() {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return Annotation{}, ErrNoRects
	}

	return Annotation{
		ID:      uuid.NewString(),
		Page:    page,
		Kind:    kind,
		Rects:   kept,
		Note:    note,
		Created: time.Now(),
	}, nil
}

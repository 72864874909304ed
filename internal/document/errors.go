package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/pageview/internal/pagecache"
)

// Document errors.
var (
	// ErrPageNotFound indicates a page index outside the document.
	ErrPageNotFound = errors.New("page not found")

	// ErrSourceUnavailable indicates the document can no longer be read,
	// for example because its backing files were removed.
	ErrSourceUnavailable = errors.New("document source unavailable")
)

// PageError represents a failure of one operation on one page.
type PageError struct {
	Op   string // Operation name (e.g., "render", "geometry", "size")
	Page int    // Zero-based page index
	Err  error  // Underlying error
}

// NewPageError creates a new PageError.
func NewPageError(op string, page int, err error) *PageError {
	return &PageError{Op: op, Page: page, Err: err}
}

func (e *PageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s page %d: %v", e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("%s page %d", e.Op, e.Page)
}

func (e *PageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind classifies an error for logging and display.
type Kind uint8

// Error kinds.
const (
	KindOther Kind = iota
	KindNotFound
	KindUnavailable
	KindCancelled
	KindInvariant
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindUnavailable:
		return "unavailable"
	case KindCancelled:
		return "cancelled"
	case KindInvariant:
		return "invariant"
	default:
		return "other"
	}
}

// Classify returns the Kind of err. A nil error is KindOther.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case IsCancelled(err):
		return KindCancelled
	case errors.Is(err, ErrPageNotFound):
		return KindNotFound
	case errors.Is(err, ErrSourceUnavailable):
		return KindUnavailable
	case errors.Is(err, pagecache.ErrInvariantViolation):
		return KindInvariant
	default:
		return KindOther
	}
}

// IsCancelled reports whether err is the result of a cancelled or expired
// context. Cancellation is expected during fast scrolling and is not a
// failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

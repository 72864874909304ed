package termview

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Status is the content of the status line.
type Status struct {
	Page      int // zero-based
	PageCount int
	Zoom      float64

	CacheBytes  int64
	CacheBudget int64

	SelectedChars int
	OverText      bool

	// Message is shown right-aligned, for example the last error.
	Message string
}

var statusStyle = tcell.StyleDefault.Reverse(true)

// FormatStatus lays out s in exactly width columns.
func FormatStatus(s Status, width int) string {
	if width <= 0 {
		return ""
	}

	var left strings.Builder
	if s.PageCount > 0 {
		fmt.Fprintf(&left, " %d/%d", s.Page+1, s.PageCount)
	} else {
		left.WriteString(" empty")
	}
	fmt.Fprintf(&left, "  %d%%", int(s.Zoom*100+0.5))
	fmt.Fprintf(&left, "  cache %s/%s", humanize.IBytes(uint64(max(s.CacheBytes, 0))), humanize.IBytes(uint64(max(s.CacheBudget, 0))))
	if s.SelectedChars > 0 {
		fmt.Fprintf(&left, "  %s selected", humanize.Comma(int64(s.SelectedChars)))
	}
	if s.OverText {
		left.WriteString("  text")
	}

	l := left.String()
	r := s.Message
	if r != "" {
		r += " "
	}

	lw := runewidth.StringWidth(l)
	rw := runewidth.StringWidth(r)
	if lw+rw+1 > width {
		r = runewidth.Truncate(r, max(width-lw-1, 0), "…")
		rw = runewidth.StringWidth(r)
	}
	if lw > width {
		return runewidth.Truncate(l, width, "…")
	}
	return l + strings.Repeat(" ", width-lw-rw) + r
}

func drawStatus(screen tcell.Screen, s Status, cols, row int) {
	line := runewidth.FillRight(FormatStatus(s, cols), cols)
	drawText(screen, 0, row, cols, line, statusStyle)
}

package document

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/textlayout"
)

// MemoryPage describes one page of a Memory source.
type MemoryPage struct {
	Size  geom.Size
	Fill  color.RGBA
	Chars []textlayout.CharBox
}

// Memory is a Source held entirely in memory. Pages render as a solid fill.
// It backs tests and the empty-document state of the viewer.
type Memory struct {
	id    string
	pages []MemoryPage

	mu          sync.RWMutex
	unavailable bool
	delay       time.Duration

	renders atomic.Int64
}

// NewMemory creates a memory source with a random document id.
func NewMemory(pages ...MemoryPage) *Memory {
	return &Memory{
		id:    uuid.NewString(),
		pages: pages,
	}
}

// UniformPages returns n pages of the same size and fill.
func UniformPages(n int, size geom.Size) []MemoryPage {
	pages := make([]MemoryPage, n)
	for i := range pages {
		pages[i] = MemoryPage{Size: size, Fill: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}}
	}
	return pages
}

// ID implements Source.
func (m *Memory) ID() string { return m.id }

// PageCount implements Source.
func (m *Memory) PageCount() int { return len(m.pages) }

// PageSize implements Source.
func (m *Memory) PageSize(i int) (geom.Size, error) {
	if err := m.check("size", i); err != nil {
		return geom.Size{}, err
	}
	return m.pages[i].Size, nil
}

// RenderPage implements Source.
func (m *Memory) RenderPage(ctx context.Context, i, w, h int) (*image.RGBA, error) {
	if err := m.check("render", i); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, NewPageError("render", i, fmt.Errorf("invalid target size %dx%d", w, h))
	}

	m.mu.RLock()
	delay := m.delay
	m.mu.RUnlock()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.renders.Add(1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(m.pages[i].Fill), image.Point{}, draw.Src)
	return dst, nil
}

// CharacterBoxes implements Source.
func (m *Memory) CharacterBoxes(ctx context.Context, i int) ([]textlayout.CharBox, error) {
	if err := m.check("geometry", i); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chars := make([]textlayout.CharBox, len(m.pages[i].Chars))
	copy(chars, m.pages[i].Chars)
	return chars, nil
}

// SetUnavailable makes every subsequent call fail with ErrSourceUnavailable.
func (m *Memory) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	m.unavailable = unavailable
	m.mu.Unlock()
}

// SetRenderDelay makes RenderPage block for d before producing pixels.
func (m *Memory) SetRenderDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// Renders returns the number of completed RenderPage calls.
func (m *Memory) Renders() int64 {
	return m.renders.Load()
}

func (m *Memory) check(op string, i int) error {
	m.mu.RLock()
	unavailable := m.unavailable
	m.mu.RUnlock()
	if unavailable {
		return NewPageError(op, i, ErrSourceUnavailable)
	}
	return CheckPage(m, op, i)
}

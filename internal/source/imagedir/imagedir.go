package imagedir

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/dshills/pageview/internal/document"
	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/logging"
	"github.com/dshills/pageview/internal/textlayout"
)

// Extensions lists the recognized page image extensions.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ChangeKind describes a change to the document directory.
type ChangeKind int

const (
	// ChangePage indicates a page image or its sidecar changed.
	ChangePage ChangeKind = iota

	// ChangeUnavailable indicates the directory was removed or renamed.
	ChangeUnavailable
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangePage:
		return "page"
	case ChangeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Change is reported to the change handler.
type Change struct {
	Kind ChangeKind
	Page int // -1 for ChangeUnavailable
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Source) {
		s.logger = logging.OrNull(l).WithComponent("imagedir")
	}
}

// WithFastScaling scales with bilinear approximation instead of Catmull-Rom.
func WithFastScaling(fast bool) Option {
	return func(s *Source) {
		s.fast = fast
	}
}

// WithWatch enables watching the directory for changes.
func WithWatch(enable bool) Option {
	return func(s *Source) {
		s.watch = enable
	}
}

// WithChangeHandler sets the function called for directory changes. It is
// called from the watcher goroutine.
func WithChangeHandler(fn func(Change)) Option {
	return func(s *Source) {
		s.onChange = fn
	}
}

// WithID sets the document id instead of generating one.
func WithID(id string) Option {
	return func(s *Source) {
		s.id = id
	}
}

// page is one page image and its optional sidecar.
type page struct {
	image   string
	sidecar string
}

// Source is a document.Source backed by a directory of images.
type Source struct {
	dir   string
	id    string
	pages []page

	fast     bool
	watch    bool
	onChange func(Change)
	logger   *logging.Logger

	mu    sync.RWMutex
	sizes map[int]geom.Size

	unavailable atomic.Bool
	watcher     *dirWatcher
}

// Open scans dir for page images.
func Open(dir string, opts ...Option) (*Source, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", dir, document.ErrSourceUnavailable)
		}
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	s := &Source{
		dir:    abs,
		logger: logging.NullLogger,
		sizes:  make(map[int]geom.Size),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isPageImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	SortNatural(names)

	for _, name := range names {
		s.pages = append(s.pages, page{
			image:   filepath.Join(abs, name),
			sidecar: sidecarPath(filepath.Join(abs, name)),
		})
	}
	s.logger.Info("opened %s: %d pages, id %s", abs, len(s.pages), s.id)

	if s.watch {
		w, err := newDirWatcher(s)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		s.watcher = w
	}
	return s, nil
}

// Dir returns the absolute document directory.
func (s *Source) Dir() string { return s.dir }

// ID implements document.Source.
func (s *Source) ID() string { return s.id }

// PageCount implements document.Source.
func (s *Source) PageCount() int { return len(s.pages) }

// PagePath returns the image file of page i.
func (s *Source) PagePath(i int) string {
	if i < 0 || i >= len(s.pages) {
		return ""
	}
	return s.pages[i].image
}

// PageSize implements document.Source. Only the image header is read.
func (s *Source) PageSize(i int) (geom.Size, error) {
	if err := s.check("size", i); err != nil {
		return geom.Size{}, err
	}

	s.mu.RLock()
	sz, ok := s.sizes[i]
	s.mu.RUnlock()
	if ok {
		return sz, nil
	}

	f, err := os.Open(s.pages[i].image)
	if err != nil {
		return geom.Size{}, s.fileError("size", i, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return geom.Size{}, document.NewPageError("size", i, err)
	}
	sz = geom.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}

	s.mu.Lock()
	s.sizes[i] = sz
	s.mu.Unlock()
	return sz, nil
}

// RenderPage implements document.Source.
func (s *Source) RenderPage(ctx context.Context, i, w, h int) (*image.RGBA, error) {
	if err := s.check("render", i); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, document.NewPageError("render", i, fmt.Errorf("invalid target size %dx%d", w, h))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := s.decode(i)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var scaler draw.Scaler = draw.CatmullRom
	if s.fast {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// CharacterBoxes implements document.Source. A page without a sidecar has
// no text.
func (s *Source) CharacterBoxes(ctx context.Context, i int) ([]textlayout.CharBox, error) {
	if err := s.check("geometry", i); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.pages[i].sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			if s.dirGone() {
				return nil, s.markUnavailable("geometry", i)
			}
			return nil, nil
		}
		return nil, document.NewPageError("geometry", i, err)
	}

	chars, err := ParseSidecar(data)
	if err != nil {
		return nil, document.NewPageError("geometry", i, err)
	}
	return chars, nil
}

// Available reports whether the directory can still be read.
func (s *Source) Available() bool {
	return !s.unavailable.Load()
}

// Close stops watching the directory.
func (s *Source) Close() error {
	if s.watcher != nil {
		return s.watcher.close()
	}
	return nil
}

func (s *Source) decode(i int) (image.Image, error) {
	f, err := os.Open(s.pages[i].image)
	if err != nil {
		return nil, s.fileError("render", i, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, document.NewPageError("render", i, err)
	}
	return img, nil
}

func (s *Source) check(op string, i int) error {
	if s.unavailable.Load() {
		return document.NewPageError(op, i, document.ErrSourceUnavailable)
	}
	return document.CheckPage(s, op, i)
}

// fileError maps a vanished file to ErrSourceUnavailable.
func (s *Source) fileError(op string, i int, err error) error {
	if os.IsNotExist(err) {
		if s.dirGone() {
			return s.markUnavailable(op, i)
		}
		return document.NewPageError(op, i, fmt.Errorf("%w: %v", document.ErrSourceUnavailable, err))
	}
	return document.NewPageError(op, i, err)
}

func (s *Source) markUnavailable(op string, i int) error {
	if s.unavailable.CompareAndSwap(false, true) {
		s.logger.Warn("document directory %s is no longer available", s.dir)
	}
	return document.NewPageError(op, i, document.ErrSourceUnavailable)
}

func (s *Source) dirGone() bool {
	_, err := os.Stat(s.dir)
	return os.IsNotExist(err)
}

// invalidate forgets the cached size of page i.
func (s *Source) invalidate(i int) {
	s.mu.Lock()
	delete(s.sizes, i)
	s.mu.Unlock()
}

// pageFor returns the page whose image or sidecar is path.
func (s *Source) pageFor(path string) (int, bool) {
	for i, p := range s.pages {
		if p.image == path || p.sidecar == path {
			return i, true
		}
	}
	return 0, false
}

func isPageImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func sidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".yaml"
}

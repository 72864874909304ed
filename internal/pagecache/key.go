package pagecache

import (
	"image"
	"math"
	"strconv"
)

// ScaleQuantum is the resolution scales are rounded to before keying.
// Zoom factors that differ only by floating-point noise share an entry.
const ScaleQuantum = 1000.0

// Key identifies one rendered page bitmap. Build keys with NewKey; the
// cache quantizes Scale on every lookup, so a hand-built key with an
// unrounded scale still addresses the same entry.
type Key struct {
	DocumentID string
	PageIndex  int
	Scale      float64
}

// NewKey creates a key with the scale quantized to 1/ScaleQuantum.
func NewKey(documentID string, pageIndex int, scale float64) Key {
	return Key{
		DocumentID: documentID,
		PageIndex:  pageIndex,
		Scale:      QuantizeScale(scale),
	}
}

// QuantizeScale rounds scale to the cache key resolution.
func QuantizeScale(scale float64) float64 {
	return math.Round(scale*ScaleQuantum) / ScaleQuantum
}

func (k Key) quantized() Key {
	k.Scale = QuantizeScale(k.Scale)
	return k
}

// String returns the key as "doc#page@scale".
func (k Key) String() string {
	return k.DocumentID + "#" + strconv.Itoa(k.PageIndex) + "@" + strconv.FormatFloat(k.Scale, 'f', -1, 64)
}

// ByteSize returns the accounted size of a bitmap: width × height × 4.
func ByteSize(b *image.RGBA) int64 {
	if b == nil {
		return 0
	}
	r := b.Bounds()
	return int64(r.Dx()) * int64(r.Dy()) * 4
}

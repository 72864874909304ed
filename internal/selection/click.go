package selection

import (
	"time"

	"github.com/dshills/pageview/internal/geom"
)

// clickTracker tracks press patterns for double-click detection.
type clickTracker struct {
	maxTime     time.Duration
	maxDistance float64

	lastPos   geom.Point
	lastTime  time.Time
	lastCount int
}

func newClickTracker(maxTime time.Duration, maxDistance float64) *clickTracker {
	return &clickTracker{
		maxTime:     maxTime,
		maxDistance: maxDistance,
	}
}

// recordClick records a press and returns its position in the current
// click sequence (1 for a fresh press, 2 for a double click, ...).
// A zero timestamp is replaced with now.
func (t *clickTracker) recordClick(pos geom.Point, timestamp time.Time, now func() time.Time) int {
	if timestamp.IsZero() {
		timestamp = now()
	}

	if t.isPartOfSequence(pos, timestamp) {
		t.lastCount++
	} else {
		t.lastCount = 1
	}

	t.lastPos = pos
	t.lastTime = timestamp

	return t.lastCount
}

// isPartOfSequence checks if a press continues the current sequence.
func (t *clickTracker) isPartOfSequence(pos geom.Point, timestamp time.Time) bool {
	if t.lastCount == 0 || t.lastTime.IsZero() {
		return false
	}

	// Clock skew starts a new sequence.
	elapsed := timestamp.Sub(t.lastTime)
	if elapsed < 0 || elapsed > t.maxTime {
		return false
	}

	return pos.Distance(t.lastPos) <= t.maxDistance
}

// reset clears the sequence so the next press counts as a single click.
func (t *clickTracker) reset() {
	t.lastCount = 0
	t.lastTime = time.Time{}
	t.lastPos = geom.Point{}
}

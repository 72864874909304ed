package app

import (
	"sync/atomic"
	"time"
)

// Metrics tracks frame and input timing of the UI loop.
type Metrics struct {
	// Frame timing
	frameCount   atomic.Uint64
	frameTotalNs atomic.Int64
	frameMaxNs   atomic.Int64
	lastFrameNs  atomic.Int64

	// Input handling
	inputCount   atomic.Uint64
	inputTotalNs atomic.Int64
	inputDropped atomic.Uint64

	// Draw requests coalesced into an already pending frame
	coalescedDraws atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordFrame records the duration of one draw.
func (m *Metrics) RecordFrame(duration time.Duration) {
	ns := duration.Nanoseconds()

	m.frameCount.Add(1)
	m.frameTotalNs.Add(ns)
	m.lastFrameNs.Store(ns)

	for {
		old := m.frameMaxNs.Load()
		if ns <= old {
			break
		}
		if m.frameMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordInput records the handling time of one input event.
func (m *Metrics) RecordInput(duration time.Duration) {
	m.inputCount.Add(1)
	m.inputTotalNs.Add(duration.Nanoseconds())
}

// RecordInputDropped records an input event lost to a full UI queue.
func (m *Metrics) RecordInputDropped() {
	m.inputDropped.Add(1)
}

// RecordCoalescedDraw records a draw request folded into a pending one.
func (m *Metrics) RecordCoalescedDraw() {
	m.coalescedDraws.Add(1)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	FrameCount     uint64
	AvgFrame       time.Duration
	MaxFrame       time.Duration
	LastFrame      time.Duration
	InputCount     uint64
	AvgInput       time.Duration
	InputDropped   uint64
	CoalescedDraws uint64
	Uptime         time.Duration
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		FrameCount:     m.frameCount.Load(),
		MaxFrame:       time.Duration(m.frameMaxNs.Load()),
		LastFrame:      time.Duration(m.lastFrameNs.Load()),
		InputCount:     m.inputCount.Load(),
		InputDropped:   m.inputDropped.Load(),
		CoalescedDraws: m.coalescedDraws.Load(),
		Uptime:         time.Since(m.startTime),
	}
	if s.FrameCount > 0 {
		s.AvgFrame = time.Duration(m.frameTotalNs.Load() / int64(s.FrameCount))
	}
	if s.InputCount > 0 {
		s.AvgInput = time.Duration(m.inputTotalNs.Load() / int64(s.InputCount))
	}
	return s
}

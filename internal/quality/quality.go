// Package quality holds the mutable per-engine quality state: the
// current QualityConfig (width/jpegQuality/fps), the ScaledDims derived
// from it, and the rolling Metrics window the controller reads. The
// controller itself (a pure decision function over Metrics) lives in
// controller.go.
package quality

import (
	"sync"
	"time"

	"github.com/care/screenshare/internal/profile"
)

// Config is the mutable quality configuration for one capture engine.
// Always within profile.MinWidth/MaxWidth, profile.MinJPEGQuality/
// MaxJPEGQuality and profile.MinFPS/MaxFPS.
type Config struct {
	Width       int
	JPEGQuality int
	FPS         int
}

// FromProfile creates the initial Config for a freshly selected profile.
func FromProfile(p profile.Profile) Config {
	return Config{Width: p.DefaultWidth, JPEGQuality: p.JPEGQuality, FPS: p.FPS}
}

// ScaledDims is the encode resolution derived from Config.Width and the
// real screen size, recomputed whenever Config.Width changes.
type ScaledDims struct {
	Width  int
	Height int
}

// DeriveScaledDims computes ScaledDims from a quality width and the
// real screen dimensions: height = floor(width * realHeight / realWidth).
func DeriveScaledDims(width, realWidth, realHeight int) ScaledDims {
	return ScaledDims{
		Width:  width,
		Height: (width * realHeight) / realWidth,
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampWidth restricts a width to the static bounds shared by every
// profile.
func ClampWidth(w int) int { return clamp(w, profile.MinWidth, profile.MaxWidth) }

// ClampJPEGQuality restricts a JPEG quality to the static bounds.
func ClampJPEGQuality(q int) int { return clamp(q, profile.MinJPEGQuality, profile.MaxJPEGQuality) }

// ClampFPS restricts an fps value to the static bounds.
func ClampFPS(f int) int { return clamp(f, profile.MinFPS, profile.MaxFPS) }

// maxWindowSamples bounds the rolling processing-time window to the
// last 30 samples.
const maxWindowSamples = 30

// Metrics is the engine's rolling performance window plus cumulative
// frame counters. All fields are engine-private; sessions only observe
// them indirectly through controller decisions and status snapshots.
type Metrics struct {
	mu sync.Mutex

	processingTimes   []time.Duration
	droppedFrames     uint64
	framesSent        uint64
	lastFrameSentTime time.Time
	lastFrameHash     [16]byte
	hasLastFrameHash  bool
}

// NewMetrics creates an empty Metrics window.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordProcessingTime appends a sample to the rolling window, evicting
// the oldest sample once the window exceeds maxWindowSamples.
func (m *Metrics) RecordProcessingTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processingTimes = append(m.processingTimes, d)
	if len(m.processingTimes) > maxWindowSamples {
		m.processingTimes = m.processingTimes[1:]
	}
}

// IncrementDropped increments the dropped-frame counter.
func (m *Metrics) IncrementDropped() {
	m.mu.Lock()
	m.droppedFrames++
	m.mu.Unlock()
}

// RecordSent increments the sent-frame counter and stamps the send time.
func (m *Metrics) RecordSent(at time.Time) {
	m.mu.Lock()
	m.framesSent++
	m.lastFrameSentTime = at
	m.mu.Unlock()
}

// LastFrameSentTime returns the timestamp of the most recently emitted
// frame, or the zero time if none has been emitted yet.
func (m *Metrics) LastFrameSentTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFrameSentTime
}

// LastFrameHash returns the digest of the most recently accepted
// (non-duplicate) raw frame, and whether one has been recorded yet.
func (m *Metrics) LastFrameHash() ([16]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFrameHash, m.hasLastFrameHash
}

// SetLastFrameHash records the digest of the most recently accepted
// raw frame.
func (m *Metrics) SetLastFrameHash(h [16]byte) {
	m.mu.Lock()
	m.lastFrameHash = h
	m.hasLastFrameHash = true
	m.mu.Unlock()
}

// ClearLastFrameHash forgets the last accepted digest, used when the
// sampler loop stops so the next subscriber's first frame
// is never treated as a duplicate of a stale sample.
func (m *Metrics) ClearLastFrameHash() {
	m.mu.Lock()
	m.lastFrameHash = [16]byte{}
	m.hasLastFrameHash = false
	m.mu.Unlock()
}

// Snapshot is a point-in-time, lock-free copy of Metrics for the
// controller and for status reporting.
type Snapshot struct {
	AvgProcessing time.Duration
	DroppedFrames uint64
	FramesSent    uint64
}

// DropRate is dropped / (dropped + sent + 1). The +1
// avoids a division by zero on the very first measurement window and
// means the ratio never reaches exactly 1.0.
func (s Snapshot) DropRate() float64 {
	return float64(s.DroppedFrames) / float64(s.DroppedFrames+s.FramesSent+1)
}

// Snapshot captures the current rolling window and counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	for _, d := range m.processingTimes {
		total += d
	}
	var avg time.Duration
	if len(m.processingTimes) > 0 {
		avg = total / time.Duration(len(m.processingTimes))
	}

	return Snapshot{
		AvgProcessing: avg,
		DroppedFrames: m.droppedFrames,
		FramesSent:    m.framesSent,
	}
}

// RecentHighMotion reports whether the average processing time over
// just the last n samples exceeds threshold — the "high motion"
// heuristic the encoder uses to decide whether to drop jpeg quality.
func (m *Metrics) RecentHighMotion(n int, threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.processingTimes) == 0 {
		return false
	}
	start := len(m.processingTimes) - n
	if start < 0 {
		start = 0
	}
	recent := m.processingTimes[start:]

	var total time.Duration
	for _, d := range recent {
		total += d
	}
	avg := total / time.Duration(len(recent))
	return avg > threshold
}

// ResetWindow clears the rolling processing-time window and both frame
// counters. Called whenever an accepted quality-update changes the
// config, by the engine's once-per-second stats log, and when the
// sampler loop stops.
func (m *Metrics) ResetWindow() {
	m.mu.Lock()
	m.processingTimes = nil
	m.droppedFrames = 0
	m.framesSent = 0
	m.mu.Unlock()
}

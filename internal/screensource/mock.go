package screensource

import "sync/atomic"

// MockSource generates synthetic RGBA frames for tests.
//
// By default every call returns an identical black frame, which
// exercises the capture engine's deduplication path. Call Mutate to
// force the next Capture to return a visibly different frame.
type MockSource struct {
	size Size

	generation atomic.Int64
	closed     atomic.Bool
}

// NewMockSource creates a mock source reporting the given real screen
// size on every Capture.
func NewMockSource(size Size) *MockSource {
	return &MockSource{size: size}
}

// Mutate causes the next Capture call (and every one after it, until
// Mutate is called again) to return a frame distinguishable from the
// previous generation's.
func (m *MockSource) Mutate() {
	m.generation.Add(1)
}

// Capture returns a synthetic RGBA buffer. Every byte is set to the
// current generation counter, so two Captures between Mutate calls are
// byte-identical (and therefore deduplicate), while a Capture after a
// Mutate call differs.
func (m *MockSource) Capture() ([]byte, Size, error) {
	fill := byte(m.generation.Load())
	buf := make([]byte, m.size.Width*m.size.Height*4)
	for i := range buf {
		buf[i] = fill
	}
	return buf, m.size, nil
}

// Close marks the source closed. Idempotent.
func (m *MockSource) Close() error {
	m.closed.Store(true)
	return nil
}

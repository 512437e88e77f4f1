package quality_test

import (
	"testing"
	"time"

	"github.com/care/screenshare/internal/quality"
)

func TestDeriveScaledDims(t *testing.T) {
	dims := quality.DeriveScaledDims(960, 7680, 4320)
	if dims.Width != 960 || dims.Height != 540 {
		t.Fatalf("dims = %+v, want {960 540}", dims)
	}
}

func TestMetricsDropRate(t *testing.T) {
	s := quality.Snapshot{DroppedFrames: 15, FramesSent: 85}
	if got := s.DropRate(); got <= 0.14 || got >= 0.15 {
		t.Fatalf("DropRate() = %f, want ~0.1485", got)
	}
}

func TestMetricsWindowCapsAt30Samples(t *testing.T) {
	m := quality.NewMetrics()
	// The first 10 samples are slow; only the last 30 (all 1ms) may
	// remain in the window.
	for i := 0; i < 40; i++ {
		d := time.Millisecond
		if i < 10 {
			d = 100 * time.Millisecond
		}
		m.RecordProcessingTime(d)
	}
	snap := m.Snapshot()
	if snap.AvgProcessing != time.Millisecond {
		t.Fatalf("AvgProcessing = %v, want 1ms", snap.AvgProcessing)
	}
}

func TestMetricsResetWindow(t *testing.T) {
	m := quality.NewMetrics()
	m.RecordProcessingTime(5 * time.Millisecond)
	m.IncrementDropped()
	m.RecordSent(time.Now())
	m.ResetWindow()

	snap := m.Snapshot()
	if snap.DroppedFrames != 0 || snap.FramesSent != 0 || snap.AvgProcessing != 0 {
		t.Fatalf("snapshot after reset = %+v, want all zero", snap)
	}
}

func TestLastFrameHashRoundTrip(t *testing.T) {
	m := quality.NewMetrics()
	if _, ok := m.LastFrameHash(); ok {
		t.Fatalf("LastFrameHash() ok = true before any hash recorded")
	}
	var h [16]byte
	h[0] = 0xAB
	m.SetLastFrameHash(h)
	got, ok := m.LastFrameHash()
	if !ok || got != h {
		t.Fatalf("LastFrameHash() = (%x, %v), want (%x, true)", got, ok, h)
	}
	m.ClearLastFrameHash()
	if _, ok := m.LastFrameHash(); ok {
		t.Fatalf("LastFrameHash() ok = true after Clear")
	}
}

package chunking_test

import (
	"testing"

	"github.com/care/screenshare/internal/chunking"
)

func TestShouldChunk(t *testing.T) {
	// spec scenario: 4K profile, maxFrameKB=1024, encoded size 2097152 bytes.
	if !chunking.ShouldChunk(2097152, 1024) {
		t.Fatalf("ShouldChunk(2097152, 1024) = false, want true")
	}
	if chunking.ShouldChunk(1024*1024, 1024) {
		t.Fatalf("ShouldChunk at exactly the threshold = true, want false (strictly greater)")
	}
}

func TestSplitProduces64ChunksForSpecScenario(t *testing.T) {
	data := make([]byte, 2097152)
	chunks := chunking.Split(data)
	if len(chunks) != 64 {
		t.Fatalf("len(chunks) = %d, want 64", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunks[%d].Index = %d", i, c.Index)
		}
		if c.Total != 64 {
			t.Errorf("chunks[%d].Total = %d, want 64", i, c.Total)
		}
		wantLast := i == 63
		if c.IsLastChunk != wantLast {
			t.Errorf("chunks[%d].IsLastChunk = %v, want %v", i, c.IsLastChunk, wantLast)
		}
	}
}

func TestSplitLastChunkShorter(t *testing.T) {
	data := make([]byte, chunking.ChunkSize+100)
	chunks := chunking.Split(data)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if len(chunks[0].Data) != chunking.ChunkSize {
		t.Errorf("chunks[0] length = %d, want %d", len(chunks[0].Data), chunking.ChunkSize)
	}
	if len(chunks[1].Data) != 100 {
		t.Errorf("chunks[1] length = %d, want 100", len(chunks[1].Data))
	}
}

func TestReassembleRoundTrip(t *testing.T) {
	data := make([]byte, 500000)
	for i := range data {
		data[i] = byte(i)
	}
	chunks := chunking.Split(data)
	got := chunking.Reassemble(chunks)
	if len(got) != len(data) {
		t.Fatalf("len(reassembled) = %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d differs: got %d want %d", i, got[i], data[i])
		}
	}
}

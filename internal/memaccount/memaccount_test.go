package memaccount_test

import (
	"testing"

	"github.com/care/screenshare/internal/memaccount"
)

func TestAddReleaseRoundTrip(t *testing.T) {
	a := memaccount.New()
	a.Add(1024)
	a.Add(2048)
	if got := a.Total(); got != 3072 {
		t.Fatalf("Total() = %d, want 3072", got)
	}
	a.Release(3072)
	if got := a.Total(); got != 0 {
		t.Fatalf("Total() after release = %d, want 0", got)
	}
	if a.Pressure() {
		t.Fatalf("Pressure() = true after full release, want false")
	}
}

func TestPressureLatches(t *testing.T) {
	a := memaccount.New()
	over := int(memaccount.MaxMemoryMB)*1024*1024 + 1
	a.Add(over)
	if !a.Pressure() {
		t.Fatalf("Pressure() = false after exceeding threshold, want true")
	}
	a.Release(1)
	if a.Pressure() {
		t.Fatalf("Pressure() = true once total returns to exactly the threshold, want false")
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	a := memaccount.New()
	a.Release(100)
	if got := a.Total(); got != 0 {
		t.Fatalf("Total() = %d after releasing with nothing added, want 0", got)
	}
}

package profile_test

import (
	"testing"

	"github.com/care/screenshare/internal/profile"
)

func TestSelect(t *testing.T) {
	cases := []struct {
		name          string
		screenWidth   int
		wantName      string
		wantDefault   int
		wantQuality   int
		wantFPS       int
	}{
		{"8k", 7680, "8K+", 960, 70, 20},
		{"qhd", 2560, "QHD", 1440, 85, 40},
		{"fhd fallback", 800, "FHD", 1440, 85, 45},
		{"between qhd and ultrawide", 3000, "QHD", 1440, 85, 40},
		{"exactly at ultrawide boundary", 3440, "Ultrawide", 1280, 82, 35},
		{"below everything", 0, "FHD", 1440, 85, 45},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := profile.Select(tc.screenWidth)
			if got.Name != tc.wantName {
				t.Fatalf("Select(%d).Name = %q, want %q", tc.screenWidth, got.Name, tc.wantName)
			}
			if got.DefaultWidth != tc.wantDefault {
				t.Errorf("DefaultWidth = %d, want %d", got.DefaultWidth, tc.wantDefault)
			}
			if got.JPEGQuality != tc.wantQuality {
				t.Errorf("JPEGQuality = %d, want %d", got.JPEGQuality, tc.wantQuality)
			}
			if got.FPS != tc.wantFPS {
				t.Errorf("FPS = %d, want %d", got.FPS, tc.wantFPS)
			}
		})
	}
}

func TestSelectAlwaysMatchesTableOrder(t *testing.T) {
	// First entry with MinWidth >= 0 satisfying screenWidth must win; the
	// table is ordered highest-resolution-first so a naive linear scan
	// without the MinWidth check could pick the wrong entry.
	got := profile.Select(5120)
	if got.Name != "5K-6K" {
		t.Fatalf("Select(5120).Name = %q, want %q", got.Name, "5K-6K")
	}
}

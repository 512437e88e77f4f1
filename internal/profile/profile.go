// Package profile holds the static display-profile table: a fixed
// mapping from real screen width to a tuned initial quality
// configuration, covering encode quality, target fps, and the
// chunking threshold per resolution class.
package profile

// Profile is a static bundle of tuned defaults keyed by screen width.
type Profile struct {
	Name          string
	MinWidth      int
	DefaultWidth  int
	JPEGQuality   int
	FPS           int
	MaxFrameKB    int
}

// Bounds on QualityConfig fields, shared by every profile and by the
// quality controller.
const (
	MinWidth       = 800
	MaxWidth       = 1920
	MinJPEGQuality = 60
	MaxJPEGQuality = 90
	MinFPS         = 1
	MaxFPS         = 60
)

// table is consulted top-down by real screen width; the first entry
// with MinWidth <= screenWidth wins. The last entry has MinWidth 0 and
// acts as the default for anything not matched above it.
var table = []Profile{
	{Name: "8K+", MinWidth: 7680, DefaultWidth: 960, JPEGQuality: 70, FPS: 20, MaxFrameKB: 512},
	{Name: "5K-6K", MinWidth: 5120, DefaultWidth: 1024, JPEGQuality: 75, FPS: 25, MaxFrameKB: 768},
	{Name: "4K", MinWidth: 3840, DefaultWidth: 1200, JPEGQuality: 80, FPS: 30, MaxFrameKB: 1024},
	{Name: "Ultrawide", MinWidth: 3440, DefaultWidth: 1280, JPEGQuality: 82, FPS: 35, MaxFrameKB: 1024},
	{Name: "QHD", MinWidth: 2560, DefaultWidth: 1440, JPEGQuality: 85, FPS: 40, MaxFrameKB: 1280},
	{Name: "FHD", MinWidth: 0, DefaultWidth: 1440, JPEGQuality: 85, FPS: 45, MaxFrameKB: 1536},
}

// Select returns the first profile whose MinWidth is satisfied by
// screenWidth, scanning the table top-down. The last entry (MinWidth 0)
// always matches, so Select never fails.
func Select(screenWidth int) Profile {
	for _, candidate := range table {
		if screenWidth >= candidate.MinWidth {
			return candidate
		}
	}
	// Unreachable: the table's last entry has MinWidth 0.
	return table[len(table)-1]
}

package quality

import "time"

// Inputs is everything the controller reads to make a decision. Pure:
// given the same Inputs it always returns the same Decision.
type Inputs struct {
	AvgProcessing   time.Duration
	AdaptiveInterval time.Duration
	DropRate        float64
	Pressure        bool
	HighRes         bool // realWidth >= 3840
}

// Action is which of the three mutually-exclusive branches the
// controller took.
type Action int

const (
	// NoOp means none of the degrade/improve conditions held.
	NoOp Action = iota
	Degrade
	Improve
)

// Decision is the controller's output: which action it took and the
// deltas to apply to jpegQuality and width. Deltas are already signed
// (negative for Degrade); the caller adds them to the current Config
// and clamps.
type Decision struct {
	Action         Action
	QualityDelta   int
	WidthDelta     int
}

// Adjust evaluates the degrade/improve decision table in order and
// returns the resulting Decision. It never reads or writes engine state itself
// — the caller is responsible for applying the deltas, clamping to
// bounds and the profile's DefaultWidth cap on Improve, and
// recomputing ScaledDims.
func Adjust(in Inputs) Decision {
	degradeThreshold := 0.15
	if in.Pressure {
		degradeThreshold *= 1.5
	}

	if in.DropRate > degradeThreshold ||
		(in.AdaptiveInterval > 0 && in.AvgProcessing > time.Duration(float64(in.AdaptiveInterval)*0.8)) ||
		in.Pressure {

		qualityDelta := -5
		widthDelta := -128
		if in.HighRes {
			qualityDelta = -8
			widthDelta = -192
		}
		return Decision{Action: Degrade, QualityDelta: qualityDelta, WidthDelta: widthDelta}
	}

	if in.DropRate < 0.05 &&
		in.AdaptiveInterval > 0 && in.AvgProcessing < time.Duration(float64(in.AdaptiveInterval)*0.5) &&
		!in.Pressure {

		qualityDelta := 1
		if in.HighRes {
			qualityDelta = 2
		}
		return Decision{Action: Improve, QualityDelta: qualityDelta, WidthDelta: 64}
	}

	return Decision{Action: NoOp}
}

// ApplyDegrade applies a Degrade decision's deltas to cfg, flooring at
// the static minimums.
func ApplyDegrade(cfg Config, d Decision) Config {
	cfg.JPEGQuality = ClampJPEGQuality(cfg.JPEGQuality + d.QualityDelta)
	cfg.Width = ClampWidth(cfg.Width + d.WidthDelta)
	return cfg
}

// ApplyImprove applies an Improve decision's deltas to cfg, capping
// jpegQuality at the static maximum and width at defaultWidth — the
// profile's tuned width, never the static MaxWidth. This asymmetry is
// deliberate: external quality-update messages may request a width up
// to MaxWidth, but the controller itself never raises width past
// defaultWidth.
func ApplyImprove(cfg Config, d Decision, defaultWidth int) Config {
	cfg.JPEGQuality = ClampJPEGQuality(cfg.JPEGQuality + d.QualityDelta)
	newWidth := cfg.Width + d.WidthDelta
	if newWidth > defaultWidth {
		newWidth = defaultWidth
	}
	cfg.Width = ClampWidth(newWidth)
	return cfg
}

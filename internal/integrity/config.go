// Package integrity implements the attention monitor of an interview session:
// per-frame presence classification, absence tracking, warning escalation,
// the final countdown and the integrity score.
//
// Nothing in this package starts goroutines or timers. Every operation takes
// the current instant explicitly so the owning session loop decides when time
// advances.
package integrity

import (
	"time"

	"github.com/stemsi/interview-coach/internal/config"
)

// Thresholds holds the cutoffs of the frame heuristic.
type Thresholds struct {
	// SampleWidth and SampleHeight bound the analysis cost: every frame is
	// downscaled to this size first.
	SampleWidth  int
	SampleHeight int

	// MaxFramePixels caps the declared size of an incoming frame. Zero
	// disables the cap.
	MaxFramePixels int64

	// MinMeanLuminance: frames darker than this are treated as a covered lens.
	MinMeanLuminance float64
	// MinLuminanceVariance: flatter frames are treated as an obstruction
	// (hand over the camera, tape, a wall).
	MinLuminanceVariance float64

	// CenterRegion is the fraction of each axis, centred, searched for skin.
	CenterRegion float64
	// SkinRedMargin is how far red must exceed both green and blue.
	SkinRedMargin int
	// SkinMinRed is the minimum red channel for a skin pixel.
	SkinMinRed int
	// SkinMinBrightness is the minimum luminance for a skin pixel.
	SkinMinBrightness float64
	// MinSkinRatio is the share of skin pixels in the centre region below
	// which no face is assumed.
	MinSkinRatio float64
}

// Config groups every tunable of the monitor in one place.
type Config struct {
	Thresholds Thresholds

	// DebounceTicks is the run of consecutive absent samples that raises one
	// distraction trigger.
	DebounceTicks int
	// WarningDwell is how long Warn1/Warn2 stay up without another trigger.
	WarningDwell time.Duration
	// CriticalAfter is the escalation count that enters Critical.
	CriticalAfter int
	// CountdownSeconds is the length of the final countdown.
	CountdownSeconds int
}

// DefaultThresholds returns the empirically tuned analyzer cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SampleWidth:          64,
		SampleHeight:         48,
		MaxFramePixels:       1920 * 1080,
		MinMeanLuminance:     40,
		MinLuminanceVariance: 120,
		CenterRegion:         0.5,
		SkinRedMargin:        15,
		SkinMinRed:           95,
		SkinMinBrightness:    45,
		MinSkinRatio:         0.15,
	}
}

// DefaultConfig returns the tuning used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Thresholds:       DefaultThresholds(),
		DebounceTicks:    2,
		WarningDwell:     4500 * time.Millisecond,
		CriticalAfter:    3,
		CountdownSeconds: 10,
	}
}

// NewConfig maps the environment configuration onto the monitor tuning.
func NewConfig(c config.IntegrityConfig) Config {
	return Config{
		Thresholds: Thresholds{
			SampleWidth:          c.SampleWidth,
			SampleHeight:         c.SampleHeight,
			MaxFramePixels:       c.MaxFramePixels,
			MinMeanLuminance:     c.MinMeanLuminance,
			MinLuminanceVariance: c.MinLuminanceVariance,
			CenterRegion:         c.CenterRegion,
			SkinRedMargin:        c.SkinRedMargin,
			SkinMinRed:           c.SkinMinRed,
			SkinMinBrightness:    c.SkinMinBrightness,
			MinSkinRatio:         c.MinSkinRatio,
		},
		DebounceTicks:    c.DebounceTicks,
		WarningDwell:     c.WarningDwell,
		CriticalAfter:    c.CriticalAfter,
		CountdownSeconds: c.CountdownSeconds,
	}
}

package integrity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // browser snapshots arrive as JPEG
	_ "image/png"
	"time"

	"golang.org/x/image/draw"
)

// ErrEmptyFrame is returned for a sample that carries no pixels, which is
// what a browser sends before the video element is ready.
var ErrEmptyFrame = errors.New("empty frame")

// ErrFrameTooLarge is returned when a frame header declares more pixels than
// the analyzer accepts. The check runs before any pixel is decoded.
var ErrFrameTooLarge = errors.New("frame too large")

// Classification is the per-frame presence judgement.
type Classification int

const (
	Present Classification = iota
	BlockedByObstruction
	NoFaceDetected
)

func (c Classification) String() string {
	switch c {
	case Present:
		return "present"
	case BlockedByObstruction:
		return "blocked"
	case NoFaceDetected:
		return "no_face"
	default:
		return "unknown"
	}
}

// MarshalText encodes the classification as its wire name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Absent reports whether the classification counts as absence.
func (c Classification) Absent() bool {
	return c == BlockedByObstruction || c == NoFaceDetected
}

// FrameSample is one encoded camera snapshot. It is never retained past a
// single analysis pass.
type FrameSample struct {
	Data       []byte
	CapturedAt time.Time
}

// FrameStats are the pixel statistics a classification was based on.
type FrameStats struct {
	MeanLuminance float64 `json:"mean_luminance"`
	Variance      float64 `json:"variance"`
	SkinRatio     float64 `json:"skin_ratio"`
}

// FrameAnalyzer classifies frames with cheap pixel statistics. It keeps no
// state between frames and is safe for concurrent use.
type FrameAnalyzer struct {
	th Thresholds
}

// NewFrameAnalyzer creates a FrameAnalyzer with the given cutoffs.
func NewFrameAnalyzer(th Thresholds) *FrameAnalyzer {
	return &FrameAnalyzer{th: th}
}

// Thresholds returns the cutoffs in use.
func (a *FrameAnalyzer) Thresholds() Thresholds {
	return a.th
}

// Analyze decodes and classifies one sample. A non-nil error means the tick
// must be skipped, not counted as absence.
func (a *FrameAnalyzer) Analyze(sample FrameSample) (Classification, error) {
	img, err := a.Decode(sample)
	if err != nil {
		return Present, err
	}
	return a.Classify(img), nil
}

// Decode turns an encoded snapshot into an image. Frames whose header
// declares more than MaxFramePixels are refused without decoding.
func (a *FrameAnalyzer) Decode(sample FrameSample) (image.Image, error) {
	if len(sample.Data) == 0 {
		return nil, ErrEmptyFrame
	}
	hdr, _, err := image.DecodeConfig(bytes.NewReader(sample.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}
	if limit := a.th.MaxFramePixels; limit > 0 && int64(hdr.Width)*int64(hdr.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, hdr.Width, hdr.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(sample.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyFrame
	}
	return img, nil
}

// Classify returns the presence classification of img.
func (a *FrameAnalyzer) Classify(img image.Image) Classification {
	c, _ := a.ClassifyWithStats(img)
	return c
}

// ClassifyWithStats is Classify plus the statistics behind the decision.
func (a *FrameAnalyzer) ClassifyWithStats(img image.Image) (Classification, FrameStats) {
	small := a.downscale(img)
	stats := FrameStats{}
	stats.MeanLuminance, stats.Variance = luminanceStats(small)

	if stats.MeanLuminance < a.th.MinMeanLuminance || stats.Variance < a.th.MinLuminanceVariance {
		return BlockedByObstruction, stats
	}

	stats.SkinRatio = a.skinRatio(small)
	if stats.SkinRatio < a.th.MinSkinRatio {
		return NoFaceDetected, stats
	}
	return Present, stats
}

// downscale copies img into an RGBA buffer of the configured sample size.
func (a *FrameAnalyzer) downscale(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, a.th.SampleWidth, a.th.SampleHeight))
	src := img.Bounds()
	if src.Dx() == a.th.SampleWidth && src.Dy() == a.th.SampleHeight {
		draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

func luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// luminanceStats returns mean and population variance of pixel luminance.
func luminanceStats(img *image.RGBA) (mean, variance float64) {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0, 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3]
			l := luminance(p[0], p[1], p[2])
			sum += l
			sumSq += l * l
		}
	}

	mean = sum / n
	variance = sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// skinRatio is the share of warm skin-tone pixels in the centre region.
func (a *FrameAnalyzer) skinRatio(img *image.RGBA) float64 {
	b := img.Bounds()
	w := int(float64(b.Dx()) * a.th.CenterRegion)
	h := int(float64(b.Dy()) * a.th.CenterRegion)
	if w < 1 || h < 1 {
		return 0
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2

	skin := 0
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			off := img.PixOffset(x, y)
			if a.isSkin(img.Pix[off], img.Pix[off+1], img.Pix[off+2]) {
				skin++
			}
		}
	}
	return float64(skin) / float64(w*h)
}

func (a *FrameAnalyzer) isSkin(r, g, b uint8) bool {
	m := a.th.SkinRedMargin
	return int(r) >= a.th.SkinMinRed &&
		int(r) > int(g)+m &&
		int(r) > int(b)+m &&
		luminance(r, g, b) >= a.th.SkinMinBrightness
}

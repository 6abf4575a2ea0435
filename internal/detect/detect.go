package detect

import (
	"context"
	"image"
)

// BBox represents a bounding box in pixel coordinates
type BBox struct {
	X1 float64 `json:"x1"` // Left
	Y1 float64 `json:"y1"` // Top
	X2 float64 `json:"x2"` // Right
	Y2 float64 `json:"y2"` // Bottom
}

// Width returns the box width in pixels
func (b BBox) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Detection represents a single detection result.
// Immutable once produced by a Detector.
type Detection struct {
	Class      string  `json:"class"`      // Detection class (oil_spill, sheen, etc.)
	Confidence float64 `json:"confidence"` // Detection confidence [0-1]
	BBox       BBox    `json:"bbox"`       // Bounding box in pixel space
	Area       float64 `json:"area"`       // Box area in pixels
}

// Detector is the capability interface for detection backends.
// Implementations wrap a scoring backend (local model, remote inference
// service); the pipeline never depends on a concrete binding.
type Detector interface {
	// Detect runs detection on a frame. Detections below confThreshold
	// are not returned.
	Detect(ctx context.Context, img image.Image, confThreshold float64) ([]Detection, error)

	// Healthy returns true if the detector is operational
	Healthy() bool

	// Close releases detector resources
	Close() error
}

// CoverageRatio returns the fraction of the image area covered by
// detection boxes, ignoring overlap between boxes.
func CoverageRatio(dets []Detection, width, height int) float64 {
	total := float64(width) * float64(height)
	if total <= 0 || len(dets) == 0 {
		return 0
	}
	var covered float64
	for _, d := range dets {
		covered += d.Area
	}
	ratio := covered / total
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

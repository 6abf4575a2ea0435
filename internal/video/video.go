// Package video implements the frame-by-frame detection session: source
// decoding, codec negotiation for the output writer, bounded frame
// retention and incremental statistics.
package video

import (
	"image"

	"oilscan/internal/detect"
)

// SourceMeta describes an opened video source
type SourceMeta struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // As reported by the container; the loop reads to EOF regardless
}

// FrameSource decodes frames from a video source in order.
// Next returns io.EOF when the stream is exhausted.
type FrameSource interface {
	Meta() SourceMeta
	Next() (image.Image, error)
	Close() error
}

// SourceOpener opens a video file for decoding
type SourceOpener interface {
	Open(path string) (FrameSource, error)
}

// FrameWriter writes frames to an output video file
type FrameWriter interface {
	Write(img image.Image) error
	Close() error
}

// WriterFactory initializes an output writer for a specific codec.
// Open must fail rather than return a writer that cannot encode.
type WriterFactory interface {
	Open(codec, path string, width, height int, fps float64) (FrameWriter, error)
}

// FrameRecord holds one retained frame pair with its detection metadata.
// Owned by the FrameStore once retained; never mutated after insertion.
type FrameRecord struct {
	Index         int                // 0-based frame index in the decode sequence
	Original      image.Image        // Untouched source frame
	Annotated     image.Image        // Frame with overlays drawn
	Detections    []detect.Detection // Detections for this frame
	AvgConfidence float64            // Mean confidence across this frame's detections
}

// HasDetection reports whether the frame carries at least one detection
func (r FrameRecord) HasDetection() bool { return len(r.Detections) > 0 }

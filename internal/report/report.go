// Package report builds the export views of a detection run: plain text,
// CSV, JSON and PDF. Inputs are the finalized aggregate, the detection
// list and the retained frame pairs, nothing else.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"oilscan/internal/detect"
	"oilscan/internal/safetree"
	"oilscan/internal/video"
)

// Bundle carries everything the exporters need for one run
type Bundle struct {
	SourceName  string
	SourceInfo  map[string]string // container/codec/geometry metadata
	Stats       video.Aggregate
	Detections  []detect.Detection  // flattened detections (image runs) or empty
	Frames      []video.FrameRecord // retained pairs, ascending frame index
	GeneratedAt time.Time
}

func (b *Bundle) generatedAt() time.Time {
	if b.GeneratedAt.IsZero() {
		return time.Now()
	}
	return b.GeneratedAt
}

// Text renders the plain-text report
func (b *Bundle) Text() string {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "OIL SPILL DETECTION REPORT")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "Generated: %s\n\n", b.generatedAt().Format("2006-01-02 15:04:05"))

	if len(b.SourceInfo) > 0 {
		fmt.Fprintln(&sb, "SOURCE INFORMATION:")
		fmt.Fprintln(&sb, thin)
		keys := make([]string, 0, len(b.SourceInfo))
		for k := range b.SourceInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, b.SourceInfo[k])
		}
		fmt.Fprintln(&sb)
	}

	fmt.Fprintln(&sb, "DETECTION STATISTICS:")
	fmt.Fprintln(&sb, thin)
	fmt.Fprintf(&sb, "  Total Frames: %d\n", b.Stats.TotalFrames)
	fmt.Fprintf(&sb, "  Frames with Detections: %d\n", b.Stats.FramesWithDetections)
	fmt.Fprintf(&sb, "  Total Detections: %d\n", b.Stats.TotalDetections)
	fmt.Fprintf(&sb, "  Average Confidence: %.4f\n", b.Stats.MeanConfidence)
	fmt.Fprintf(&sb, "  Max Confidence: %.4f\n", b.Stats.MaxConfidence)
	fmt.Fprintf(&sb, "  Min Confidence: %.4f\n", b.Stats.MinConfidence)
	fmt.Fprintf(&sb, "  Coverage: %.2f%%\n\n", b.Stats.Coverage*100)

	fmt.Fprintln(&sb, "DETECTION DETAILS:")
	fmt.Fprintln(&sb, thin)
	if len(b.Detections) == 0 {
		fmt.Fprintln(&sb, "  No detections found.")
	}
	for i, d := range b.Detections {
		fmt.Fprintf(&sb, "  Detection %d:\n", i+1)
		fmt.Fprintf(&sb, "    Class: %s\n", d.Class)
		fmt.Fprintf(&sb, "    Confidence: %.4f\n", d.Confidence)
		fmt.Fprintf(&sb, "    Bounding Box: [%.2f, %.2f, %.2f, %.2f]\n",
			d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2)
		fmt.Fprintf(&sb, "    Area: %.2f pixels\n\n", d.Area)
	}
	fmt.Fprintln(&sb, rule)
	return sb.String()
}

// CSV renders the per-detection table
func (b *Bundle) CSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Class", "Confidence", "X1", "Y1", "X2", "Y2", "Area"}); err != nil {
		return "", err
	}
	for _, d := range b.Detections {
		row := []string{
			d.Class,
			fmt.Sprintf("%.4f", d.Confidence),
			fmt.Sprintf("%.2f", d.BBox.X1),
			fmt.Sprintf("%.2f", d.BBox.Y1),
			fmt.Sprintf("%.2f", d.BBox.X2),
			fmt.Sprintf("%.2f", d.BBox.Y2),
			fmt.Sprintf("%.2f", d.Area),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// JSON renders the structured report. Only sanitized trees are embedded,
// so frame buffers can never leak into this export.
func (b *Bundle) JSON() (string, error) {
	return safetree.SanitizeJSON(map[string]any{
		"timestamp":  b.generatedAt(),
		"source":     b.SourceName,
		"statistics": b.Stats,
		"detections": b.Detections,
	})
}

package report

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/go-pdf/fpdf"

	"oilscan/internal/video"
)

// DefaultPDFFrameCap limits how many frame comparisons a PDF carries
const DefaultPDFFrameCap = 20

// PDF renders the paged report: title, statistics table and up to
// maxFrames original/annotated comparisons taken from the frame store.
func (b *Bundle) PDF(maxFrames int) ([]byte, error) {
	if maxFrames <= 0 {
		maxFrames = DefaultPDFFrameCap
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle("Video Oil Spill Detection Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, "Video Oil Spill Detection Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 8, "Generated: "+b.generatedAt().Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if len(b.SourceInfo) > 0 || b.SourceName != "" {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, "Source", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		if b.SourceName != "" {
			b.pdfKV(pdf, "File", b.SourceName)
		}
		for k, v := range b.SourceInfo {
			b.pdfKV(pdf, k, v)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Overall Statistics", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	b.pdfKV(pdf, "Total Frames", fmt.Sprintf("%d", b.Stats.TotalFrames))
	b.pdfKV(pdf, "Frames with Detections", fmt.Sprintf("%d", b.Stats.FramesWithDetections))
	b.pdfKV(pdf, "Total Detections", fmt.Sprintf("%d", b.Stats.TotalDetections))
	b.pdfKV(pdf, "Avg Detections per Frame", fmt.Sprintf("%.2f", b.Stats.AvgDetectionsPerFrame))
	b.pdfKV(pdf, "Max Detections in Frame", fmt.Sprintf("%d", b.Stats.MaxDetectionsInFrame))
	b.pdfKV(pdf, "Mean Confidence", fmt.Sprintf("%.4f", b.Stats.MeanConfidence))
	b.pdfKV(pdf, "Detection Rate", fmt.Sprintf("%.2f%%", b.Stats.Coverage*100))

	frames := b.Frames
	if len(frames) > maxFrames {
		frames = frames[:maxFrames]
	}
	if len(frames) > 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, "Frame-by-Frame Analysis", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, "Comparison between original frames and frames with detection overlays.", "", "L", false)
		pdf.Ln(2)

		for i, rec := range frames {
			if err := b.pdfFrame(pdf, rec); err != nil {
				return nil, err
			}
			if (i+1)%3 == 0 && i < len(frames)-1 {
				pdf.AddPage()
			}
		}
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, fmt.Sprintf(
		"This analysis detected oil spills in %d out of %d frames, with a total of %d detections across the entire video.",
		b.Stats.FramesWithDetections, b.Stats.TotalFrames, b.Stats.TotalDetections), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Bundle) pdfKV(pdf *fpdf.Fpdf, key, value string) {
	pdf.CellFormat(60, 7, key, "1", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, value, "1", 1, "L", false, 0, "")
}

// pdfFrame renders one comparison block: header, info, side-by-side
// images, and the per-frame detection table.
func (b *Bundle) pdfFrame(pdf *fpdf.Fpdf, rec video.FrameRecord) error {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Frame %d", rec.Index+1), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	b.pdfKV(pdf, "Detections", fmt.Sprintf("%d", len(rec.Detections)))
	b.pdfKV(pdf, "Average Confidence", fmt.Sprintf("%.2f%%", rec.AvgConfidence*100))

	if rec.Original != nil && rec.Annotated != nil {
		origName := fmt.Sprintf("orig-%d", rec.Index)
		annotName := fmt.Sprintf("annot-%d", rec.Index)
		var orig, annot bytes.Buffer
		if err := jpeg.Encode(&orig, rec.Original, &jpeg.Options{Quality: 80}); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", rec.Index, err)
		}
		if err := jpeg.Encode(&annot, rec.Annotated, &jpeg.Options{Quality: 80}); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", rec.Index, err)
		}
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(origName, opts, &orig)
		pdf.RegisterImageOptionsReader(annotName, opts, &annot)

		y := pdf.GetY() + 2
		pdf.ImageOptions(origName, 15, y, 85, 0, false, opts, 0, "")
		pdf.ImageOptions(annotName, 110, y, 85, 0, false, opts, 0, "")
		pdf.SetY(y + 68)
	}

	if len(rec.Detections) > 0 {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Confidence", "1", 0, "C", false, 0, "")
		pdf.CellFormat(0, 6, "Class", "1", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for i, d := range rec.Detections {
			pdf.CellFormat(15, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.2f%%", d.Confidence*100), "1", 0, "C", false, 0, "")
			pdf.CellFormat(0, 6, d.Class, "1", 1, "C", false, 0, "")
		}
	}
	return nil
}

package video

// FrameCount records the number of detections seen at one frame index
type FrameCount struct {
	Frame      int `json:"frame"`
	Detections int `json:"detections"`
}

// Aggregate is the immutable statistics snapshot produced at session end
type Aggregate struct {
	TotalFrames           int          `json:"total_frames"`
	FramesWithDetections  int          `json:"frames_with_detections"`
	TotalDetections       int          `json:"total_detections"`
	MaxDetectionsInFrame  int          `json:"max_detections_in_frame"`
	AvgDetectionsPerFrame float64      `json:"avg_detections_per_frame"`
	MeanConfidence        float64      `json:"mean_confidence"`
	MinConfidence         float64      `json:"min_confidence"`
	MaxConfidence         float64      `json:"max_confidence"`
	Coverage              float64      `json:"coverage"` // frames with detection / total frames
	History               []FrameCount `json:"detection_history"`
}

// Aggregator accumulates per-frame detection statistics incrementally.
// Counters only ever grow; Finalize exposes a read-only snapshot.
type Aggregator struct {
	totalFrames          int
	framesWithDetections int
	totalDetections      int
	maxInFrame           int
	confSum              float64
	confCount            int
	confMin              float64
	confMax              float64
	history              []FrameCount
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Update folds one processed frame into the running counters
func (a *Aggregator) Update(rec FrameRecord) {
	a.totalFrames++
	a.history = append(a.history, FrameCount{Frame: rec.Index, Detections: len(rec.Detections)})

	if !rec.HasDetection() {
		return
	}

	a.framesWithDetections++
	a.totalDetections += len(rec.Detections)
	if n := len(rec.Detections); n > a.maxInFrame {
		a.maxInFrame = n
	}
	for _, d := range rec.Detections {
		if a.confCount == 0 {
			a.confMin = d.Confidence
			a.confMax = d.Confidence
		} else {
			if d.Confidence < a.confMin {
				a.confMin = d.Confidence
			}
			if d.Confidence > a.confMax {
				a.confMax = d.Confidence
			}
		}
		a.confSum += d.Confidence
		a.confCount++
	}
}

// Finalize computes the derived values and returns a snapshot.
// Safe on zero-frame and zero-detection input: ratios are 0, never NaN.
func (a *Aggregator) Finalize() Aggregate {
	agg := Aggregate{
		TotalFrames:          a.totalFrames,
		FramesWithDetections: a.framesWithDetections,
		TotalDetections:      a.totalDetections,
		MaxDetectionsInFrame: a.maxInFrame,
		MinConfidence:        a.confMin,
		MaxConfidence:        a.confMax,
		History:              append([]FrameCount(nil), a.history...),
	}
	if a.confCount > 0 {
		agg.MeanConfidence = a.confSum / float64(a.confCount)
	}
	if a.totalFrames > 0 {
		agg.Coverage = float64(a.framesWithDetections) / float64(a.totalFrames)
		agg.AvgDetectionsPerFrame = float64(a.totalDetections) / float64(a.totalFrames)
	}
	return agg
}

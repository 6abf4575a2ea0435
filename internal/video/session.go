package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"sync"

	"oilscan/internal/annotate"
	"oilscan/internal/detect"
)

// State identifies where a session is in its lifecycle
type State string

const (
	StateIdle      State = "idle"
	StateOpened    State = "opened"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateClosed    State = "closed"
)

// ProgressFunc receives per-frame progress. total is the frame count
// reported by the container (0 when unknown). Implementations must not
// block and must not touch session state.
type ProgressFunc func(frame, total int)

// Config controls one processing session
type Config struct {
	Codecs              []string     // Encoder preference order; DefaultCodecs when empty
	ConfidenceThreshold float64      // Passed through to the detector
	RetainFrames        bool         // Whether to keep frame pairs for comparison views
	RetainCap           int          // FrameStore cap; DefaultRetainCap when 0
	Progress            ProgressFunc // Optional per-frame progress callback
}

// Result is the outcome of a completed run
type Result struct {
	OutputPath  string
	ChosenCodec string
	Stats       Aggregate
	Frames      []FrameRecord // Retained frame pairs, ascending index
}

// Session orchestrates the frame loop for a single video: decode, detect,
// annotate, encode, aggregate, retain. A session processes one video and
// owns its frame store, aggregator and writer; it is not reusable.
type Session struct {
	detector detect.Detector
	opener   SourceOpener
	factory  WriterFactory
	cfg      Config

	store *FrameStore
	agg   *Aggregator

	state State
	mu    sync.RWMutex
}

// NewSession creates a session in the Idle state
func NewSession(detector detect.Detector, opener SourceOpener, factory WriterFactory, cfg Config) *Session {
	return &Session{
		detector: detector,
		opener:   opener,
		factory:  factory,
		cfg:      cfg,
		store:    NewFrameStore(cfg.RetainCap),
		agg:      NewAggregator(),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run processes sourcePath frame by frame and writes the annotated video
// to outputPath. The loop is synchronous; ctx is checked between frames
// for cooperative cancellation. On any fatal error the partial output is
// removed and all handles are released.
func (s *Session) Run(ctx context.Context, sourcePath, outputPath string) (*Result, error) {
	if st := s.State(); st != StateIdle {
		return nil, fmt.Errorf("session already used (state %s)", st)
	}
	defer s.setState(StateClosed)

	// Idle → Opened
	src, err := s.opener.Open(sourcePath)
	if err != nil {
		s.setState(StateFailed)
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer src.Close()

	meta := src.Meta()
	if meta.Width <= 0 || meta.Height <= 0 {
		s.setState(StateFailed)
		return nil, fmt.Errorf("%w: invalid geometry %dx%d", ErrSourceUnreadable, meta.Width, meta.Height)
	}
	if meta.FrameCount == 0 {
		s.setState(StateFailed)
		return nil, fmt.Errorf("%w: zero frames", ErrSourceUnreadable)
	}
	s.setState(StateOpened)

	// Opened → Running: negotiate the encoder before touching any frame.
	writer, codec, err := Negotiate(s.factory, s.cfg.Codecs, outputPath, meta.Width, meta.Height, meta.FPS)
	if err != nil {
		s.setState(StateFailed)
		return nil, err
	}
	s.setState(StateRunning)

	fail := func(frame int, stage string, cause error) (*Result, error) {
		writer.Close()
		os.Remove(outputPath)
		s.setState(StateFailed)
		return nil, &ProcessingError{Frame: frame, Stage: stage, Err: cause}
	}

	// Some containers report a negative frame count; publish that as
	// unknown (0) rather than a negative total.
	total := meta.FrameCount
	if total < 0 {
		total = 0
	}
	frameIdx := 0
	for {
		if err := ctx.Err(); err != nil {
			return fail(frameIdx, "cancel", err)
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(frameIdx, "decode", err)
		}

		rec := s.processFrame(ctx, frameIdx, frame)

		if err := writer.Write(rec.Annotated); err != nil {
			return fail(frameIdx, "write", err)
		}

		s.agg.Update(rec)
		if s.cfg.RetainFrames {
			s.store.Offer(rec)
		}

		frameIdx++
		if s.cfg.Progress != nil {
			s.cfg.Progress(frameIdx, total)
		}
	}

	// Running → Completed
	if err := writer.Close(); err != nil {
		os.Remove(outputPath)
		s.setState(StateFailed)
		return nil, &ProcessingError{Frame: frameIdx, Stage: "finalize", Err: err}
	}
	s.setState(StateCompleted)

	return &Result{
		OutputPath:  outputPath,
		ChosenCodec: codec,
		Stats:       s.agg.Finalize(),
		Frames:      s.store.Retained(),
	}, nil
}

// processFrame runs detection and annotation for one frame. Detector
// failures are absorbed: the frame is still emitted unannotated and
// counted as zero detections.
func (s *Session) processFrame(ctx context.Context, idx int, frame image.Image) FrameRecord {
	rec := FrameRecord{Index: idx, Original: frame, Annotated: frame}

	dets, err := s.detector.Detect(ctx, frame, s.cfg.ConfidenceThreshold)
	if err != nil {
		log.Printf("[Session] Detector error at frame %d (frame emitted unannotated): %v", idx, err)
		return rec
	}
	if len(dets) == 0 {
		return rec
	}

	rec.Detections = dets
	rec.Annotated = annotate.Draw(frame, dets)

	var sum float64
	for _, d := range dets {
		sum += d.Confidence
	}
	rec.AvgConfidence = sum / float64(len(dets))
	return rec
}

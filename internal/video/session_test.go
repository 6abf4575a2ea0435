package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"oilscan/internal/detect"
)

// fakeSource yields n synthetic frames then io.EOF
type fakeSource struct {
	n         int
	pos       int
	failAt    int // decode error at this index; -1 disables
	metaCount int // reported frame count override; 0 reports n
	closed    bool
}

func newFakeSource(n int) *fakeSource { return &fakeSource{n: n, failAt: -1} }

func (f *fakeSource) Meta() SourceMeta {
	count := f.n
	if f.metaCount != 0 {
		count = f.metaCount
	}
	return SourceMeta{Width: 64, Height: 48, FPS: 30, FrameCount: count}
}

func (f *fakeSource) Next() (image.Image, error) {
	if f.pos == f.failAt {
		return nil, errors.New("corrupt frame")
	}
	if f.pos >= f.n {
		return nil, io.EOF
	}
	f.pos++
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeOpener struct {
	src *fakeSource
	err error
}

func (o fakeOpener) Open(path string) (FrameSource, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

// fakeWriter records written frames; the factory creates the output file
// on disk so deletion-on-failure can be observed.
type fakeWriter struct {
	written int
	failAt  int // write error at this frame ordinal; -1 disables
	closed  bool
}

func (w *fakeWriter) Write(img image.Image) error {
	if w.written == w.failAt {
		return errors.New("disk full")
	}
	w.written++
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeFactory struct {
	okCodec string // codec that succeeds; "" means all fail
	tried   []string
	writer  *fakeWriter
}

func (f *fakeFactory) Open(codec, path string, width, height int, fps float64) (FrameWriter, error) {
	f.tried = append(f.tried, codec)
	// Opening attempts create the target file, like a real encoder does.
	os.WriteFile(path, []byte("partial"), 0o644)
	if codec != f.okCodec {
		return nil, fmt.Errorf("codec %s unavailable", codec)
	}
	if f.writer == nil {
		f.writer = &fakeWriter{failAt: -1}
	}
	return f.writer, nil
}

// fakeDetector returns canned detections per frame ordinal
type fakeDetector struct {
	byFrame map[int][]detect.Detection
	errAt   map[int]error
	calls   int
}

func (d *fakeDetector) Detect(ctx context.Context, img image.Image, conf float64) ([]detect.Detection, error) {
	idx := d.calls
	d.calls++
	if err, ok := d.errAt[idx]; ok {
		return nil, err
	}
	return d.byFrame[idx], nil
}

func (d *fakeDetector) Healthy() bool { return true }
func (d *fakeDetector) Close() error  { return nil }

func outPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.mp4")
}

func TestSession_SuccessfulRun(t *testing.T) {
	det := &fakeDetector{byFrame: map[int][]detect.Detection{
		1: {{Class: "oil_spill", Confidence: 0.9, BBox: detect.BBox{X1: 1, Y1: 1, X2: 10, Y2: 10}}},
		3: {{Class: "oil_spill", Confidence: 0.6, BBox: detect.BBox{X1: 2, Y1: 2, X2: 8, Y2: 8}}},
	}}
	factory := &fakeFactory{okCodec: "mp4v"}
	src := newFakeSource(5)

	var lastFrame, lastTotal int
	s := NewSession(det, fakeOpener{src: src}, factory, Config{
		Codecs:       []string{"mp4v"},
		RetainFrames: true,
		RetainCap:    12,
		Progress: func(frame, total int) {
			lastFrame, lastTotal = frame, total
		},
	})

	res, err := s.Run(context.Background(), "in.mp4", outPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.ChosenCodec != "mp4v" {
		t.Fatalf("codec: got %q", res.ChosenCodec)
	}
	if res.Stats.TotalFrames != 5 || res.Stats.FramesWithDetections != 2 || res.Stats.TotalDetections != 2 {
		t.Fatalf("stats: %+v", res.Stats)
	}
	if res.Stats.MeanConfidence != 0.75 {
		t.Fatalf("mean confidence: got %v", res.Stats.MeanConfidence)
	}
	if res.Stats.Coverage != 0.4 {
		t.Fatalf("coverage: got %v", res.Stats.Coverage)
	}
	if factory.writer.written != 5 {
		t.Fatalf("frames written: got %d, want 5", factory.writer.written)
	}
	if !factory.writer.closed {
		t.Fatal("writer not closed")
	}
	if !src.closed {
		t.Fatal("source not closed")
	}
	if len(res.Frames) != 2 || res.Frames[0].Index != 1 || res.Frames[1].Index != 3 {
		t.Fatalf("retained frames: %+v", res.Frames)
	}
	if lastFrame != 5 || lastTotal != 5 {
		t.Fatalf("progress: got %d/%d", lastFrame, lastTotal)
	}
	if s.State() != StateClosed {
		t.Fatalf("state: got %s", s.State())
	}
}

func TestSession_DetectorErrorIsNonFatal(t *testing.T) {
	det := &fakeDetector{
		byFrame: map[int][]detect.Detection{
			1: {{Class: "oil_spill", Confidence: 0.8}},
		},
		errAt: map[int]error{3: errors.New("inference timeout")},
	}
	factory := &fakeFactory{okCodec: "mp4v"}
	s := NewSession(det, fakeOpener{src: newFakeSource(5)}, factory, Config{})

	res, err := s.Run(context.Background(), "in.mp4", outPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.TotalFrames != 5 {
		t.Fatalf("total frames: got %d, want 5", res.Stats.TotalFrames)
	}
	// Frame 3 contributes zero detections but is still written.
	if res.Stats.TotalDetections != 1 {
		t.Fatalf("total detections: got %d", res.Stats.TotalDetections)
	}
	if factory.writer.written != 5 {
		t.Fatalf("frames written: got %d, want 5", factory.writer.written)
	}
}

func TestSession_WriteFailureDeletesPartialOutput(t *testing.T) {
	det := &fakeDetector{}
	factory := &fakeFactory{okCodec: "mp4v", writer: &fakeWriter{failAt: 2}}
	s := NewSession(det, fakeOpener{src: newFakeSource(5)}, factory, Config{})

	out := outPath(t)
	_, err := s.Run(context.Background(), "in.mp4", out)

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if perr.Frame != 2 || perr.Stage != "write" {
		t.Fatalf("got frame %d stage %s", perr.Frame, perr.Stage)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial output was not deleted")
	}
	if s.State() != StateClosed {
		t.Fatalf("state: got %s", s.State())
	}
}

func TestSession_DecodeFailureMidStream(t *testing.T) {
	src := newFakeSource(5)
	src.failAt = 3
	factory := &fakeFactory{okCodec: "mp4v"}
	s := NewSession(&fakeDetector{}, fakeOpener{src: src}, factory, Config{})

	out := outPath(t)
	_, err := s.Run(context.Background(), "in.mp4", out)

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if perr.Frame != 3 || perr.Stage != "decode" {
		t.Fatalf("got frame %d stage %s", perr.Frame, perr.Stage)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial output was not deleted")
	}
	if !src.closed {
		t.Fatal("source not closed on failure")
	}
}

func TestSession_SourceUnreadable(t *testing.T) {
	s := NewSession(&fakeDetector{}, fakeOpener{err: errors.New("no such file")}, &fakeFactory{}, Config{})
	_, err := s.Run(context.Background(), "missing.mp4", outPath(t))
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("expected ErrSourceUnreadable, got %v", err)
	}
}

func TestSession_ZeroFrameSource(t *testing.T) {
	s := NewSession(&fakeDetector{}, fakeOpener{src: newFakeSource(0)}, &fakeFactory{}, Config{})
	_, err := s.Run(context.Background(), "empty.mp4", outPath(t))
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("expected ErrSourceUnreadable, got %v", err)
	}
}

func TestSession_NoCodecAvailable(t *testing.T) {
	factory := &fakeFactory{} // every codec fails
	s := NewSession(&fakeDetector{}, fakeOpener{src: newFakeSource(3)}, factory, Config{
		Codecs: []string{"AAAA", "BBBB"},
	})

	out := outPath(t)
	_, err := s.Run(context.Background(), "in.mp4", out)
	if !errors.Is(err, ErrNoCodecAvailable) {
		t.Fatalf("expected ErrNoCodecAvailable, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial output was not deleted")
	}
}

func TestSession_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := &fakeFactory{okCodec: "mp4v"}
	s := NewSession(&fakeDetector{}, fakeOpener{src: newFakeSource(5)}, factory, Config{})

	out := outPath(t)
	_, err := s.Run(ctx, "in.mp4", out)

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if perr.Stage != "cancel" {
		t.Fatalf("stage: got %s", perr.Stage)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatal("cause should be context.Canceled")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial output was not deleted on cancel")
	}
}

func TestSession_NegativeContainerCountReportsUnknownTotal(t *testing.T) {
	src := newFakeSource(3)
	src.metaCount = -1 // some containers report a bogus negative count
	factory := &fakeFactory{okCodec: "mp4v"}

	var totals []int
	s := NewSession(&fakeDetector{}, fakeOpener{src: src}, factory, Config{
		Codecs: []string{"mp4v"},
		Progress: func(frame, total int) {
			totals = append(totals, total)
		},
	})

	res, err := s.Run(context.Background(), "in.mp4", outPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.TotalFrames != 3 {
		t.Fatalf("frames processed: %d", res.Stats.TotalFrames)
	}
	if len(totals) != 3 {
		t.Fatalf("progress calls: %d", len(totals))
	}
	for _, total := range totals {
		if total != 0 {
			t.Fatalf("negative container count leaked into progress: %d", total)
		}
	}
}

func TestSession_NotReusable(t *testing.T) {
	factory := &fakeFactory{okCodec: "mp4v"}
	s := NewSession(&fakeDetector{}, fakeOpener{src: newFakeSource(2)}, factory, Config{})
	if _, err := s.Run(context.Background(), "in.mp4", outPath(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), "in.mp4", outPath(t)); err == nil {
		t.Fatal("second Run should be rejected")
	}
}

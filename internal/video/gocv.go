package video

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

// OpenCV binds the FrameSource/WriterFactory abstractions to gocv.
// The zero value is usable.
type OpenCV struct{}

// Open opens a video file for frame-by-frame decoding
func (OpenCV) Open(path string) (FrameSource, error) {
	cap, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("capture not opened: %s", path)
	}

	meta := SourceMeta{
		Width:      int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(cap.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        cap.Get(gocv.VideoCaptureFPS),
		FrameCount: int(cap.Get(gocv.VideoCaptureFrameCount)),
	}

	mat := gocv.NewMat()
	return &captureSource{cap: cap, mat: &mat, meta: meta}, nil
}

// Writer returns a factory producing gocv-backed output writers
func (OpenCV) Writer() WriterFactory { return opencvWriterFactory{} }

type opencvWriterFactory struct{}

// Open initializes a VideoWriter for the given fourcc codec. gocv leaves
// the writer unopened when the codec is unavailable, which is reported as
// an error so codec negotiation can move on to the next candidate.
func (opencvWriterFactory) Open(codec, path string, width, height int, fps float64) (FrameWriter, error) {
	return openWriter(codec, path, width, height, fps)
}

type captureSource struct {
	cap  *gocv.VideoCapture
	mat  *gocv.Mat
	meta SourceMeta
}

func (c *captureSource) Meta() SourceMeta { return c.meta }

func (c *captureSource) Next() (image.Image, error) {
	if ok := c.cap.Read(c.mat); !ok {
		return nil, io.EOF
	}
	if c.mat.Empty() {
		return nil, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (c *captureSource) Close() error {
	c.mat.Close()
	return c.cap.Close()
}

type videoWriter struct {
	w *gocv.VideoWriter
}

func openWriter(codec, path string, width, height int, fps float64) (FrameWriter, error) {
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("writer %s: %w", codec, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("writer %s: could not be opened", codec)
	}
	return &videoWriter{w: w}, nil
}

func (vw *videoWriter) Write(img image.Image) error {
	rgba, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	return vw.w.Write(bgr)
}

func (vw *videoWriter) Close() error {
	return vw.w.Close()
}

var (
	_ SourceOpener  = OpenCV{}
	_ WriterFactory = opencvWriterFactory{}
)

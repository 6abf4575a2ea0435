package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// RemoteDetector calls a YOLO inference sidecar over HTTP.
// The model is loaded once inside the sidecar; this client only
// tracks its health and forwards frames.
type RemoteDetector struct {
	endpoint      string
	client        *http.Client
	enabled       bool
	confThreshold float64
	classFilter   string
	healthCheck   time.Time
	mu            sync.RWMutex
}

// RemoteConfig holds configuration for the remote detector
type RemoteConfig struct {
	Endpoint            string
	ConfidenceThreshold float64
	ClassFilter         string
	Timeout             time.Duration
}

// remoteDetection mirrors the sidecar's detection JSON
type remoteDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
	Area       float64   `json:"area"`
}

// remoteResult mirrors the sidecar's detection response
type remoteResult struct {
	Detections      []remoteDetection `json:"detections"`
	Count           int               `json:"count"`
	InferenceTimeMs float64           `json:"inference_time_ms"`
	Device          string            `json:"device"`
}

// remoteHealth mirrors the sidecar's health response
type remoteHealth struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewRemoteDetector creates a detector client for the given inference endpoint
func NewRemoteDetector(cfg RemoteConfig) *RemoteDetector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second // Longer timeout for GPU inference
	}
	return &RemoteDetector{
		endpoint:      cfg.Endpoint,
		client:        &http.Client{Timeout: timeout},
		enabled:       true,
		confThreshold: cfg.ConfidenceThreshold,
		classFilter:   cfg.ClassFilter,
	}
}

// Healthy checks if the inference service is available.
// The result is cached for 30 seconds to keep the per-frame path cheap.
func (rd *RemoteDetector) Healthy() bool {
	rd.mu.RLock()
	if !rd.enabled {
		rd.mu.RUnlock()
		return false
	}
	if time.Since(rd.healthCheck) < 30*time.Second {
		rd.mu.RUnlock()
		return true
	}
	rd.mu.RUnlock()

	resp, err := rd.client.Get(rd.endpoint + "/health")
	if err != nil {
		rd.mu.Lock()
		rd.enabled = false
		rd.mu.Unlock()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var health remoteHealth
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.ModelLoaded {
			rd.mu.Lock()
			rd.healthCheck = time.Now()
			rd.enabled = true
			rd.mu.Unlock()
			return true
		}
	}

	rd.mu.Lock()
	rd.enabled = false
	rd.mu.Unlock()
	return false
}

// Detect runs detection on a single frame via the inference service
func (rd *RemoteDetector) Detect(ctx context.Context, img image.Image, confThreshold float64) ([]Detection, error) {
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	fw.Write(frame.Bytes())

	if confThreshold <= 0 {
		confThreshold = rd.confThreshold
	}
	w.WriteField("conf_threshold", fmt.Sprintf("%.3f", confThreshold))

	rd.mu.RLock()
	if rd.classFilter != "" {
		w.WriteField("classes_filter", rd.classFilter)
	}
	rd.mu.RUnlock()

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rd.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := rd.client.Do(req)
	if err != nil {
		rd.mu.Lock()
		rd.enabled = false
		rd.mu.Unlock()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detection failed: %s", string(body))
	}

	var result remoteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	dets := make([]Detection, 0, len(result.Detections))
	for _, rdet := range result.Detections {
		det := Detection{
			Class:      rdet.Class,
			Confidence: rdet.Confidence,
			Area:       rdet.Area,
		}
		if len(rdet.BBox) == 4 {
			det.BBox = BBox{X1: rdet.BBox[0], Y1: rdet.BBox[1], X2: rdet.BBox[2], Y2: rdet.BBox[3]}
		}
		if det.Area == 0 {
			det.Area = det.BBox.Width() * det.BBox.Height()
		}
		dets = append(dets, det)
	}
	return dets, nil
}

// Close releases client resources
func (rd *RemoteDetector) Close() error {
	rd.client.CloseIdleConnections()
	return nil
}

// Ensure RemoteDetector implements Detector
var _ Detector = (*RemoteDetector)(nil)

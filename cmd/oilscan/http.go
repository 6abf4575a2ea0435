package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"oilscan/internal/activity"
	"oilscan/internal/alert"
	"oilscan/internal/annotate"
	"oilscan/internal/camera"
	"oilscan/internal/config"
	"oilscan/internal/detect"
	"oilscan/internal/metrics"
	"oilscan/internal/report"
	"oilscan/internal/safetree"
	"oilscan/internal/video"
	"oilscan/internal/ws"
)

// srvDeps bundles everything the HTTP layer depends on
type srvDeps struct {
	detector detect.Detector
	opener   video.SourceOpener
	writers  video.WriterFactory
	archiver *activity.Archiver
	store    *activity.Store
	grabber  *camera.Grabber
	hub      *ws.Hub
	alerts   *alert.System
	metrics  *metrics.Metrics
	logger   *log.Logger
}

type server struct {
	cfg *config.Config
	srvDeps

	jobs   map[string]*job
	jobsMu sync.RWMutex
}

// job tracks one asynchronous video detection run
type job struct {
	ID               string           `json:"job_id"`
	Status           string           `json:"status"` // processing | completed | failed
	Error            string           `json:"error,omitempty"`
	OriginalFilename string           `json:"original_filename"`
	OutputFile       string           `json:"output_file,omitempty"`
	Stats            *video.Aggregate `json:"statistics,omitempty"`
	Alert            *alert.Alert     `json:"alert,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`

	bundle *report.Bundle
}

func newServer(cfg *config.Config, deps srvDeps) *server {
	return &server{
		cfg:     cfg,
		srvDeps: deps,
		jobs:    make(map[string]*job),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/detect/image", s.handleDetectImage)
		r.Post("/detect/video", s.handleDetectVideo)
		r.Post("/detect/camera", s.handleDetectCamera)

		r.Get("/jobs/{job_id}", s.handleJobStatus)
		r.Get("/jobs/{job_id}/report", s.handleJobReport)

		r.Get("/activity", s.handleActivity)
		r.Get("/alerts", s.handleAlerts)
	})

	r.Get("/ws/jobs/{job_id}", ws.NewHandler(s.hub).ServeHTTP)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"detector_enabled": *s.cfg.Detector.Enabled,
		"detector_healthy": s.detector.Healthy(),
		"camera_enabled":   s.grabber.Enabled(),
	})
}

// detectionResponse is the reply for synchronous (image/camera) runs
type detectionResponse struct {
	Detections []detect.Detection `json:"detections"`
	Count      int                `json:"count"`
	Confidence float64            `json:"avg_confidence"`
	Coverage   float64            `json:"coverage"`
	Alert      alert.Alert        `json:"alert"`
	OutputFile string             `json:"output_file"`
}

func (s *server) handleDetectImage(w http.ResponseWriter, r *http.Request) {
	if !*s.cfg.Detector.Enabled {
		respondError(w, http.StatusServiceUnavailable, "detection is disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image format")
		return
	}

	s.metrics.ImageRuns.Add(1)

	dets, err := s.detector.Detect(r.Context(), img, s.cfg.Detector.ConfidenceThreshold)
	if err != nil {
		s.metrics.FailedRuns.Add(1)
		respondError(w, http.StatusBadGateway, fmt.Sprintf("detection failed: %v", err))
		return
	}

	inputPath, err := s.archiver.ArchiveBytes(activity.KindInput, activity.ClassImage, raw, header.Filename)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to archive input: %v", err))
		return
	}

	annotated := annotate.Draw(img, dets)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, annotated, &jpeg.Options{Quality: 90}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}
	outName := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)) + "_detected.jpg"
	outputPath, err := s.archiver.ArchiveBytes(activity.KindOutput, activity.ClassImage, out.Bytes(), outName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to archive output: %v", err))
		return
	}

	bounds := img.Bounds()
	coverage := detect.CoverageRatio(dets, bounds.Dx(), bounds.Dy())
	avg := avgConfidence(dets)
	a := s.alerts.Check(len(dets), avg, coverage)
	s.metrics.DetectionsTotal.Add(uint64(len(dets)))

	s.appendEntry(r.Context(), &activity.Entry{
		ActionKind:         activity.ActionImageDetection,
		InputFile:          inputPath,
		OutputFile:         outputPath,
		OriginalFilename:   header.Filename,
		TotalDetections:    len(dets),
		AvgConfidence:      avg,
		CoveragePercentage: coverage * 100,
	}, dets, nil)

	respondJSON(w, http.StatusOK, detectionResponse{
		Detections: dets,
		Count:      len(dets),
		Confidence: avg,
		Coverage:   coverage,
		Alert:      a,
		OutputFile: outputPath,
	})
}

func (s *server) handleDetectVideo(w http.ResponseWriter, r *http.Request) {
	if !*s.cfg.Detector.Enabled {
		respondError(w, http.StatusServiceUnavailable, "detection is disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	// Spool the upload to disk, then archive the copy that will actually
	// be processed so the record always matches what detection saw.
	tmp, err := os.CreateTemp("", "oilscan-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		respondError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}

	inputPath, err := s.archiver.Archive(activity.KindInput, activity.ClassVideo, tmpPath, header.Filename)
	os.Remove(tmpPath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to archive input: %v", err))
		return
	}

	j := &job{
		ID:               uuid.New().String(),
		Status:           "processing",
		OriginalFilename: header.Filename,
		CreatedAt:        time.Now(),
	}
	s.jobsMu.Lock()
	s.jobs[j.ID] = j
	s.jobsMu.Unlock()

	go s.runVideoJob(j.ID, inputPath, header.Filename)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id":       j.ID,
		"status":       j.Status,
		"progress_url": "/ws/jobs/" + j.ID,
	})
}

// runVideoJob processes one archived video through a detection session
// and records the outcome. It runs detached from the upload request.
func (s *server) runVideoJob(jobID, inputPath, originalName string) {
	s.metrics.VideoRuns.Add(1)
	s.metrics.ActiveJobs.Add(1)
	defer s.metrics.ActiveJobs.Add(-1)

	// Progress goes through a single per-job sender so socket writes
	// never stall the frame loop and clients see frames in order. The
	// channel drops under backpressure rather than blocking.
	progressCh := make(chan *ws.ProgressMessage, 64)
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		for msg := range progressCh {
			s.hub.BroadcastProgress(jobID, msg)
		}
	}()

	sess := video.NewSession(s.detector, s.opener, s.writers, video.Config{
		Codecs:              s.cfg.Video.Codecs,
		ConfidenceThreshold: s.cfg.Detector.ConfidenceThreshold,
		RetainFrames:        *s.cfg.Video.RetainFrames,
		RetainCap:           s.cfg.Video.RetainCap,
		Progress: func(frame, total int) {
			s.metrics.FramesProcessed.Add(1)
			select {
			case progressCh <- ws.NewProgressMessage(jobID, frame, total):
			default:
			}
		},
	})

	outName := strings.TrimSuffix(originalName, filepath.Ext(originalName)) + "_detected.mp4"
	outTmp := filepath.Join(os.TempDir(), jobID+"_"+outName)

	res, err := sess.Run(context.Background(), inputPath, outTmp)
	close(progressCh)
	<-senderDone
	if err != nil {
		s.failJob(jobID, inputPath, originalName, err)
		return
	}

	outputPath, err := s.archiver.Archive(activity.KindOutput, activity.ClassVideo, outTmp, outName)
	os.Remove(outTmp)
	if err != nil {
		s.failJob(jobID, inputPath, originalName, err)
		return
	}

	a := s.alerts.Check(res.Stats.TotalDetections, res.Stats.MeanConfidence, res.Stats.Coverage)
	s.metrics.DetectionsTotal.Add(uint64(res.Stats.TotalDetections))

	bundle := &report.Bundle{
		SourceName: originalName,
		SourceInfo: map[string]string{
			"Frames": strconv.Itoa(res.Stats.TotalFrames),
			"Codec":  res.ChosenCodec,
			"Output": filepath.Base(outputPath),
		},
		Stats:       res.Stats,
		Frames:      res.Frames,
		GeneratedAt: time.Now(),
	}
	for _, fr := range res.Frames {
		bundle.Detections = append(bundle.Detections, fr.Detections...)
	}

	s.appendEntry(context.Background(), &activity.Entry{
		ActionKind:         activity.ActionVideoDetection,
		InputFile:          inputPath,
		OutputFile:         outputPath,
		OriginalFilename:   originalName,
		TotalDetections:    res.Stats.TotalDetections,
		AvgConfidence:      res.Stats.MeanConfidence,
		CoveragePercentage: res.Stats.Coverage * 100,
	}, bundle.Detections, &res.Stats)

	s.jobsMu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.Status = "completed"
		j.OutputFile = outputPath
		j.Stats = &res.Stats
		j.Alert = &a
		j.bundle = bundle
	}
	s.jobsMu.Unlock()

	msg := ws.NewResultMessage(jobID, "completed")
	msg.TotalDetections = res.Stats.TotalDetections
	msg.OutputFile = outputPath
	msg.Severity = string(a.Severity)
	msg.AlertMessage = a.Message
	s.hub.BroadcastResult(jobID, msg)
}

func (s *server) failJob(jobID, inputPath, originalName string, cause error) {
	s.metrics.FailedRuns.Add(1)
	s.logger.Printf("video job %s failed: %v", jobID, cause)

	s.jobsMu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.Status = "failed"
		j.Error = cause.Error()
	}
	s.jobsMu.Unlock()

	// Failed runs are audited too; the input was already archived, so
	// the row points at it with zero counters and the failure detail.
	e := &activity.Entry{
		ActionKind:       activity.ActionVideoDetection,
		InputFile:        inputPath,
		OriginalFilename: originalName,
	}
	if out, err := safetree.SanitizeJSON(map[string]any{
		"status": "failed",
		"error":  cause.Error(),
	}); err == nil {
		e.Statistics = out
	}
	if err := s.store.Append(context.Background(), e); err != nil {
		s.logger.Printf("activity: failed to append failed-run entry: %v", err)
	}

	msg := ws.NewResultMessage(jobID, "failed")
	msg.Error = cause.Error()
	s.hub.BroadcastResult(jobID, msg)
}

func (s *server) handleDetectCamera(w http.ResponseWriter, r *http.Request) {
	if !*s.cfg.Detector.Enabled {
		respondError(w, http.StatusServiceUnavailable, "detection is disabled")
		return
	}
	if !s.grabber.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "camera is disabled")
		return
	}

	img, err := s.grabber.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("snapshot failed: %v", err))
		return
	}

	s.metrics.CameraRuns.Add(1)

	dets, err := s.detector.Detect(r.Context(), img, s.cfg.Detector.ConfidenceThreshold)
	if err != nil {
		s.metrics.FailedRuns.Add(1)
		respondError(w, http.StatusBadGateway, fmt.Sprintf("detection failed: %v", err))
		return
	}

	annotated := annotate.Draw(img, dets)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, annotated, &jpeg.Options{Quality: 90}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode snapshot")
		return
	}
	outName := fmt.Sprintf("camera_%s.jpg", time.Now().Format("150405"))
	outputPath, err := s.archiver.ArchiveBytes(activity.KindOutput, activity.ClassImage, out.Bytes(), outName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to archive snapshot: %v", err))
		return
	}

	bounds := img.Bounds()
	coverage := detect.CoverageRatio(dets, bounds.Dx(), bounds.Dy())
	avg := avgConfidence(dets)
	a := s.alerts.Check(len(dets), avg, coverage)
	s.metrics.DetectionsTotal.Add(uint64(len(dets)))

	s.appendEntry(r.Context(), &activity.Entry{
		ActionKind:         activity.ActionCameraDetection,
		OutputFile:         outputPath,
		OriginalFilename:   outName,
		TotalDetections:    len(dets),
		AvgConfidence:      avg,
		CoveragePercentage: coverage * 100,
	}, dets, nil)

	respondJSON(w, http.StatusOK, detectionResponse{
		Detections: dets,
		Count:      len(dets),
		Confidence: avg,
		Coverage:   coverage,
		Alert:      a,
		OutputFile: outputPath,
	})
}

// snapshotJob copies the job while holding the read lock so handlers
// never observe fields mid-update from a finishing run.
func (s *server) snapshotJob(id string) (job, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job{}, false
	}
	return *j, true
}

func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.snapshotJob(chi.URLParam(r, "job_id"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown job")
		return
	}
	respondJSON(w, http.StatusOK, j)
}

func (s *server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.snapshotJob(chi.URLParam(r, "job_id"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown job")
		return
	}
	if j.Status != "completed" || j.bundle == nil {
		respondError(w, http.StatusConflict, "job has no report (status "+j.Status+")")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "txt":
		data = []byte(j.bundle.Text())
		contentType = "text/plain; charset=utf-8"
	case "csv":
		out, err := j.bundle.CSV()
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("report failed: %v", err))
			return
		}
		data = []byte(out)
		contentType = "text/csv"
	case "json":
		out, err := j.bundle.JSON()
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("report failed: %v", err))
			return
		}
		data = []byte(out)
		contentType = "application/json"
	case "pdf":
		out, err := j.bundle.PDF(s.cfg.Video.PDFFrameCap)
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("report failed: %v", err))
			return
		}
		data = out
		contentType = "application/pdf"
	default:
		respondError(w, http.StatusBadRequest, "format must be one of txt, csv, json, pdf")
		return
	}

	name := strings.TrimSuffix(j.OriginalFilename, filepath.Ext(j.OriginalFilename)) + "_report." + format
	reportPath, err := s.archiver.ArchiveBytes(activity.KindOutput, activity.ClassReport, data, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to archive report: %v", err))
		return
	}
	s.metrics.ReportsGenerated.Add(1)

	s.appendEntry(r.Context(), &activity.Entry{
		ActionKind:         activity.ActionReport,
		InputFile:          j.OutputFile,
		OutputFile:         reportPath,
		OriginalFilename:   name,
		TotalDetections:    j.bundle.Stats.TotalDetections,
		AvgConfidence:      j.bundle.Stats.MeanConfidence,
		CoveragePercentage: j.bundle.Stats.Coverage * 100,
	}, j.bundle.Detections, &j.bundle.Stats)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *server) handleActivity(w http.ResponseWriter, r *http.Request) {
	f := activity.Filter{ActionKind: r.URL.Query().Get("kind")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	entries, err := s.store.List(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list activity: %v", err))
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to count activity: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":   count,
		"entries": entries,
	})
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		n = parsed
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"alerts": s.alerts.Recent(n),
	})
}

// appendEntry sanitizes the per-run details and writes the activity row.
// Logging failures never fail the request that produced them.
func (s *server) appendEntry(ctx context.Context, e *activity.Entry, dets []detect.Detection, stats *video.Aggregate) {
	if details, err := safetree.SanitizeJSON(dets); err == nil {
		e.DetectionDetails = details
	} else {
		s.logger.Printf("activity: failed to sanitize detections: %v", err)
	}
	if stats != nil {
		if out, err := safetree.SanitizeJSON(stats); err == nil {
			e.Statistics = out
		} else {
			s.logger.Printf("activity: failed to sanitize statistics: %v", err)
		}
	}
	if err := s.store.Append(ctx, e); err != nil {
		s.logger.Printf("activity: failed to append %s entry: %v", e.ActionKind, err)
	}
}

func avgConfidence(dets []detect.Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dets {
		sum += d.Confidence
	}
	return sum / float64(len(dets))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

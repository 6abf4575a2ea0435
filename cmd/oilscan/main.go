// Command oilscan runs the oil spill detection service: an HTTP API for
// image, video and camera snapshot detection backed by a remote YOLO
// inference sidecar, with an append-only activity record on disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"oilscan/internal/activity"
	"oilscan/internal/alert"
	"oilscan/internal/camera"
	"oilscan/internal/config"
	"oilscan/internal/detect"
	"oilscan/internal/metrics"
	"oilscan/internal/video"
	"oilscan/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		addrF   = flag.String("addr", "", "Listen address (overrides configuration)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[oilscan] ", log.Ltime)

	cfg, err := config.Load(*configF)
	if err != nil {
		logger.Fatalf("configuration: %v", err)
	}
	if *addrF != "" {
		cfg.Server.Addr = *addrF
	}

	archiver, err := activity.NewArchiver(cfg.Record.BaseDir)
	if err != nil {
		logger.Fatalf("activity record: %v", err)
	}
	store, err := activity.Open(archiver.LogPath())
	if err != nil {
		logger.Fatalf("activity log: %v", err)
	}
	defer store.Close()

	detector := detect.NewRemoteDetector(detect.RemoteConfig{
		Endpoint:            cfg.Detector.Endpoint,
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		ClassFilter:         strings.Join(cfg.Detector.ClassFilter, ","),
		Timeout:             cfg.Detector.Timeout,
	})
	defer detector.Close()
	if *cfg.Detector.Enabled && !detector.Healthy() {
		logger.Printf("warning: inference service at %s is not reachable yet", cfg.Detector.Endpoint)
	}

	opencv := video.OpenCV{}
	srv := newServer(cfg, srvDeps{
		detector: detector,
		opener:   opencv,
		writers:  opencv.Writer(),
		archiver: archiver,
		store:    store,
		grabber:  camera.NewGrabber(cfg.Camera.DeviceID, cfg.Camera.Enabled),
		hub:      ws.NewHub(),
		alerts: alert.NewSystem(alert.Thresholds{
			Critical: cfg.Alerts.Critical,
			High:     cfg.Alerts.High,
			Medium:   cfg.Alerts.Medium,
			Low:      cfg.Alerts.Low,
		}),
		metrics: metrics.New(),
		logger:  logger,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.routes(),
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		logger.Printf("HTTP server listening on %s", cfg.Server.Addr)
		errc <- httpSrv.ListenAndServe()
	}()

	logger.Printf("exiting (%v)", <-errc)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	logger.Println("exited")
}

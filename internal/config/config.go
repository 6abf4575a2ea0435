// Package config handles oilscan configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level oilscan configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Video    VideoConfig    `yaml:"video"`
	Record   RecordConfig   `yaml:"record"`
	Camera   CameraConfig   `yaml:"camera"`
	Alerts   AlertConfig    `yaml:"alerts"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// DetectorConfig points at the inference service
type DetectorConfig struct {
	Endpoint            string        `yaml:"endpoint"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	ClassFilter         []string      `yaml:"class_filter"`
	Timeout             time.Duration `yaml:"timeout"`
	Enabled             *bool         `yaml:"enabled"`
}

// VideoConfig controls video session behavior
type VideoConfig struct {
	Codecs       []string `yaml:"codecs"`
	RetainFrames *bool    `yaml:"retain_frames"`
	RetainCap    int      `yaml:"retain_cap"`
	PDFFrameCap  int      `yaml:"pdf_frame_cap"`
}

// RecordConfig controls the on-disk activity record
type RecordConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// CameraConfig selects the local capture device
type CameraConfig struct {
	DeviceID int  `yaml:"device_id"`
	Enabled  bool `yaml:"enabled"`
}

// AlertConfig sets the severity boundaries by detection count
type AlertConfig struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// Load reads a YAML configuration file. A missing path yields the
// defaults so the binary runs without any configuration at all.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 512 << 20
	}
	if c.Detector.Endpoint == "" {
		c.Detector.Endpoint = "http://localhost:8000"
	}
	if c.Detector.ConfidenceThreshold <= 0 {
		c.Detector.ConfidenceThreshold = 0.25
	}
	if c.Detector.Timeout <= 0 {
		c.Detector.Timeout = 120 * time.Second
	}
	if c.Detector.Enabled == nil {
		enabled := true
		c.Detector.Enabled = &enabled
	}
	if len(c.Video.Codecs) == 0 {
		c.Video.Codecs = []string{"mp4v", "XVID", "MJPG", "X264"}
	}
	if c.Video.RetainFrames == nil {
		retain := true
		c.Video.RetainFrames = &retain
	}
	if c.Video.RetainCap <= 0 {
		c.Video.RetainCap = 12
	}
	if c.Video.PDFFrameCap <= 0 {
		c.Video.PDFFrameCap = 20
	}
	if c.Record.BaseDir == "" {
		c.Record.BaseDir = "information_record"
	}
	if c.Alerts.Critical <= 0 {
		c.Alerts.Critical = 10
	}
	if c.Alerts.High <= 0 {
		c.Alerts.High = 5
	}
	if c.Alerts.Medium <= 0 {
		c.Alerts.Medium = 2
	}
	if c.Alerts.Low <= 0 {
		c.Alerts.Low = 1
	}
}

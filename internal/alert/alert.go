// Package alert classifies detection results into severities for the UI.
package alert

import (
	"fmt"
	"sync"
	"time"
)

// Severity levels ordered from least to most urgent
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Thresholds map detection counts to severities
type Thresholds struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// DefaultThresholds returns the default severity boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 10, High: 5, Medium: 2, Low: 1}
}

// Alert is one classification result
type Alert struct {
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Detections int       `json:"detections"`
	Confidence float64   `json:"confidence"`
	Coverage   float64   `json:"coverage"`
}

// System classifies runs and keeps the alerts raised so far
type System struct {
	thresholds Thresholds
	alerts     []Alert
	mu         sync.Mutex
}

// NewSystem creates an alert system with the given thresholds
func NewSystem(t Thresholds) *System {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &System{thresholds: t}
}

// Check classifies a run by its detection count and records the alert
func (s *System) Check(detections int, avgConfidence, coverage float64) Alert {
	severity := SeverityInfo
	switch {
	case detections >= s.thresholds.Critical:
		severity = SeverityCritical
	case detections >= s.thresholds.High:
		severity = SeverityHigh
	case detections >= s.thresholds.Medium:
		severity = SeverityMedium
	case detections >= s.thresholds.Low:
		severity = SeverityLow
	}

	a := Alert{
		Timestamp:  time.Now(),
		Severity:   severity,
		Message:    message(severity, detections, avgConfidence),
		Detections: detections,
		Confidence: avgConfidence,
		Coverage:   coverage,
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return a
}

// Recent returns up to n most recent alerts, newest first
func (s *System) Recent(n int) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.alerts) {
		n = len(s.alerts)
	}
	out := make([]Alert, 0, n)
	for i := len(s.alerts) - 1; i >= len(s.alerts)-n; i-- {
		out = append(out, s.alerts[i])
	}
	return out
}

func message(sev Severity, detections int, confidence float64) string {
	switch sev {
	case SeverityCritical:
		return fmt.Sprintf("CRITICAL: %d oil spills detected (avg confidence %.0f%%), immediate response required", detections, confidence*100)
	case SeverityHigh:
		return fmt.Sprintf("HIGH: %d oil spills detected (avg confidence %.0f%%)", detections, confidence*100)
	case SeverityMedium:
		return fmt.Sprintf("MEDIUM: %d oil spills detected", detections)
	case SeverityLow:
		return fmt.Sprintf("LOW: %d oil spill detected", detections)
	default:
		return "No oil spills detected"
	}
}

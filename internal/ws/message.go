package ws

import "time"

// ProgressMessage reports how far a video detection job has advanced
type ProgressMessage struct {
	Type        string    `json:"type"` // "progress"
	JobID       string    `json:"job_id"`
	Timestamp   time.Time `json:"timestamp"`
	Frame       int       `json:"frame"`
	TotalFrames int       `json:"total_frames"`
	Percent     float64   `json:"percent"`
}

// NewProgressMessage creates a progress message for one processed frame
func NewProgressMessage(jobID string, frame, totalFrames int) *ProgressMessage {
	m := &ProgressMessage{
		Type:        "progress",
		JobID:       jobID,
		Timestamp:   time.Now(),
		Frame:       frame,
		TotalFrames: totalFrames,
	}
	if totalFrames > 0 {
		m.Percent = float64(frame) / float64(totalFrames) * 100
	}
	return m
}

// ResultMessage reports that a job has finished, successfully or not
type ResultMessage struct {
	Type            string    `json:"type"` // "result"
	JobID           string    `json:"job_id"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"` // "completed" or "failed"
	Error           string    `json:"error,omitempty"`
	TotalDetections int       `json:"total_detections"`
	OutputFile      string    `json:"output_file,omitempty"`
	Severity        string    `json:"severity,omitempty"`
	AlertMessage    string    `json:"alert_message,omitempty"`
}

// NewResultMessage creates a completion message for a finished job
func NewResultMessage(jobID, status string) *ResultMessage {
	return &ResultMessage{
		Type:      "result",
		JobID:     jobID,
		Timestamp: time.Now(),
		Status:    status,
	}
}

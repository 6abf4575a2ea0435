// Package activity records every processing run in an append-only log and
// archives the input/output files it references.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Action kinds recorded in the log
const (
	ActionImageDetection  = "Image Detection"
	ActionVideoDetection  = "Video Detection"
	ActionCameraDetection = "Real-time Camera Detection"
	ActionReport          = "Report Generation"
)

// Entry is one row of the activity log. Entries are created once per
// completed (or failed) run and never mutated after append.
type Entry struct {
	ID                 string    `json:"id"`          // uuid, filled on append
	Seq                int64     `json:"seq"`         // append order, assigned by the store
	Date               string    `json:"date"`        // YYYY-MM-DD
	Time               string    `json:"time"`        // HH:MM:SS
	Day                string    `json:"day"`         // Weekday name
	ActionKind         string    `json:"action_kind"` // One of the Action* constants
	InputFile          string    `json:"input_file"`  // Archived input path
	OutputFile         string    `json:"output_file"` // Archived output path
	OriginalFilename   string    `json:"original_filename"`
	TotalDetections    int       `json:"total_detections"`
	AvgConfidence      float64   `json:"avg_confidence"`
	CoveragePercentage float64   `json:"coverage_percentage"`
	DetectionDetails   string    `json:"detection_details"` // Sanitized JSON
	Statistics         string    `json:"statistics"`        // Sanitized JSON
	Timestamp          time.Time `json:"timestamp"`
}

// Store is the append-only activity log backed by SQLite. Appends from
// concurrent runs are serialized through a single store-level mutex so
// two sessions never interleave partial writes.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New wraps an existing database handle
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the log database at path and runs migrations.
// WAL mode keeps committed rows intact across a crash mid-append.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	s := New(db)
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the log schema if absent
func (s *Store) Init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS activity_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		day TEXT NOT NULL,
		action_type TEXT NOT NULL,
		input_file TEXT,
		output_file TEXT,
		original_filename TEXT,
		total_detections INTEGER DEFAULT 0,
		avg_confidence REAL DEFAULT 0,
		coverage_percentage REAL DEFAULT 0,
		detection_details TEXT DEFAULT '[]',
		statistics TEXT DEFAULT '{}',
		timestamp DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to migrate activity log: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error { return s.db.Close() }

// Append writes one entry. Timestamp fields and the entry id are filled
// when unset. Rows are only ever appended; there is no update or delete.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Date == "" {
		e.Date = e.Timestamp.Format("2006-01-02")
	}
	if e.Time == "" {
		e.Time = e.Timestamp.Format("15:04:05")
	}
	if e.Day == "" {
		e.Day = e.Timestamp.Weekday().String()
	}
	if e.DetectionDetails == "" {
		e.DetectionDetails = "[]"
	}
	if e.Statistics == "" {
		e.Statistics = "{}"
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO activity_log (
		entry_id, date, time, day, action_type, input_file, output_file,
		original_filename, total_detections, avg_confidence,
		coverage_percentage, detection_details, statistics, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date, e.Time, e.Day, e.ActionKind, e.InputFile, e.OutputFile,
		e.OriginalFilename, e.TotalDetections, e.AvgConfidence,
		e.CoveragePercentage, e.DetectionDetails, e.Statistics,
		e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		e.Seq = seq
	}
	return nil
}

// Filter narrows a List call
type Filter struct {
	ActionKind string // Exact match; empty matches all
	Since      time.Time
	Limit      int // 0 means no limit
}

// List returns entries in append order. Every prior successful append is
// visible, including across process restarts.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	if f.ActionKind != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, f.ActionKind)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.Format(time.RFC3339Nano))
	}

	query := `SELECT seq, entry_id, date, time, day, action_type, input_file,
		output_file, original_filename, total_detections, avg_confidence,
		coverage_percentage, detection_details, statistics, timestamp
		FROM activity_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Date, &e.Time, &e.Day,
			&e.ActionKind, &e.InputFile, &e.OutputFile, &e.OriginalFilename,
			&e.TotalDetections, &e.AvgConfidence, &e.CoveragePercentage,
			&e.DetectionDetails, &e.Statistics, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of logged entries
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&n)
	return n, err
}

package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MotionEventRecord is one persisted motion detection.
type MotionEventRecord struct {
	EventID    string    `json:"event_id"`
	DetectedAt time.Time `json:"detected_at"`
	BoxCount   int       `json:"box_count"`
	BBoxes     string    `json:"bboxes"`
	ImagePath  string    `json:"image_path,omitempty"`
}

// UploadPassRecord is one persisted upload attempt outcome.
type UploadPassRecord struct {
	StartedAt      time.Time `json:"started_at"`
	OK             bool      `json:"ok"`
	FailedAttempts int       `json:"failed_attempts"`
	Error          string    `json:"error,omitempty"`
}

// EventStore persists motion events and upload passes to sqlite so the
// status API can report recent activity across restarts.
type EventStore struct {
	db *sql.DB
}

// OpenEventStore opens (creating if necessary) the event database at path.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event store %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS motion_events (
			event_id TEXT PRIMARY KEY,
			detected_at TEXT NOT NULL,
			box_count INTEGER NOT NULL,
			bboxes TEXT NOT NULL,
			image_path TEXT
		);
		CREATE TABLE IF NOT EXISTS upload_passes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			ok INTEGER NOT NULL,
			failed_attempts INTEGER NOT NULL,
			error TEXT
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating event store schema: %w", err)
	}

	return &EventStore{db: db}, nil
}

// Close closes the underlying database.
func (s *EventStore) Close() error { return s.db.Close() }

// RecordMotionEvent inserts a motion event and returns its generated id.
func (s *EventStore) RecordMotionEvent(detectedAt time.Time, boxCount int, bboxes, imagePath string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO motion_events (event_id, detected_at, box_count, bboxes, image_path) VALUES (?, ?, ?, ?, ?)`,
		id, detectedAt.UTC().Format(time.RFC3339), boxCount, bboxes, imagePath,
	)
	if err != nil {
		return "", fmt.Errorf("inserting motion event: %w", err)
	}
	return id, nil
}

// RecordUploadPass inserts the outcome of one upload pass.
func (s *EventStore) RecordUploadPass(rec UploadPassRecord) error {
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO upload_passes (started_at, ok, failed_attempts, error) VALUES (?, ?, ?, ?)`,
		rec.StartedAt.UTC().Format(time.RFC3339), ok, rec.FailedAttempts, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting upload pass: %w", err)
	}
	return nil
}

// RecentMotionEvents returns the newest motion events, most recent first.
func (s *EventStore) RecentMotionEvents(limit int) ([]MotionEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT event_id, detected_at, box_count, bboxes, COALESCE(image_path, '')
		 FROM motion_events ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying motion events: %w", err)
	}
	defer rows.Close()

	var out []MotionEventRecord
	for rows.Next() {
		var rec MotionEventRecord
		var detectedAt string
		if err := rows.Scan(&rec.EventID, &detectedAt, &rec.BoxCount, &rec.BBoxes, &rec.ImagePath); err != nil {
			return nil, fmt.Errorf("scanning motion event: %w", err)
		}
		t, err := time.Parse(time.RFC3339, detectedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing detected_at %q: %w", detectedAt, err)
		}
		rec.DetectedAt = t
		out = append(out, rec)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/monitoring"
)

// csvHeader is written once at the top of each new day file.
const csvHeader = "timestamp,temperature,humidity,pressure,bboxes\n"

// Notifier is told about files that may need uploading. The upload scheduler
// implements it.
type Notifier interface {
	NotifyNewFile(path string) error
}

// SensorLog drains the sensor-data channel into day-partitioned CSV files,
// one file per calendar day named DD-MM-YY.csv, header written once per new
// file. It is the channel's single consumer.
type SensorLog struct {
	fs       fsutil.FileSystem
	dir      string
	records  <-chan SensorRecord
	notifier Notifier
}

// NewSensorLog creates a SensorLog writing under dir. notifier may be nil.
func NewSensorLog(fs fsutil.FileSystem, dir string, records <-chan SensorRecord, notifier Notifier) *SensorLog {
	return &SensorLog{fs: fs, dir: dir, records: records, notifier: notifier}
}

// Run consumes records until the context is cancelled. Append failures are
// logged and the record is lost; the consumer never stops on a bad row.
func (l *SensorLog) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-l.records:
			path, err := l.Append(rec)
			if err != nil {
				monitoring.Logf("sensor log: dropping record: %v", err)
				continue
			}
			if l.notifier != nil {
				if err := l.notifier.NotifyNewFile(path); err != nil {
					monitoring.Logf("sensor log: upload notify for %s failed: %v", path, err)
				}
			}
		}
	}
}

// Append writes one record to the day file for its timestamp, creating the
// file with a header if it does not exist yet. It returns the file path.
func (l *SensorLog) Append(rec SensorRecord) (string, error) {
	name := rec.Timestamp.Format("02-01-06") + ".csv"
	path := filepath.Join(l.dir, name)

	if err := l.fs.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("creating log directory %s: %w", l.dir, err)
	}

	needHeader := !l.fs.Exists(path)

	w, err := l.fs.Append(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer w.Close()

	if needHeader {
		if _, err := io.WriteString(w, csvHeader); err != nil {
			return "", fmt.Errorf("writing header to %s: %w", path, err)
		}
		monitoring.Logf("sensor log: created %s", path)
	}

	if _, err := fmt.Fprintf(w, "%d,%f,%f,%f,%s\n",
		rec.Timestamp.Unix(), rec.Temperature, rec.Humidity, rec.Pressure, rec.BBoxes); err != nil {
		return "", fmt.Errorf("appending to %s: %w", path, err)
	}
	return path, nil
}

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spaia-earth/fieldcam/internal/fsutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNotifier) NotifyNewFile(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return nil
}

func (n *recordingNotifier) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func TestSensorLogAppendHeaderOnce(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	l := NewSensorLog(fs, "/data/spaia", nil, nil)

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := SensorRecord{Timestamp: ts, Temperature: 21.5, Humidity: 60.2, Pressure: 1013.25, BBoxes: "[]"}

	path, err := l.Append(rec)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if filepath.Base(path) != "01-06-25.csv" {
		t.Errorf("day file = %s, want 01-06-25.csv", filepath.Base(path))
	}

	rec.Timestamp = ts.Add(time.Hour)
	if _, err := l.Append(rec); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("reading day file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "timestamp,temperature,humidity,pressure,bboxes" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1748772000,21.5") {
		t.Errorf("row = %q", lines[1])
	}
	if strings.Count(string(data), "timestamp,") != 1 {
		t.Error("header written more than once")
	}
}

func TestSensorLogDayPartitioning(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	l := NewSensorLog(fs, "/data/spaia", nil, nil)

	day1 := time.Date(2025, 6, 1, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2025, 6, 2, 0, 1, 0, 0, time.Local)

	p1, err := l.Append(SensorRecord{Timestamp: day1, BBoxes: "[]"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	p2, err := l.Append(SensorRecord{Timestamp: day2, BBoxes: "[]"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if p1 == p2 {
		t.Errorf("records on different days should land in different files, both in %s", p1)
	}
}

func TestSensorLogRunNotifies(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	records := make(chan SensorRecord, 4)
	n := &recordingNotifier{}
	l := NewSensorLog(fs, "/data/spaia", records, n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	rec := SensorRecord{
		Timestamp: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		BBoxes:    `[{"x_min":1,"y_min":1,"x_max":2,"y_max":2}]`,
	}
	if !Offer(records, rec) {
		t.Fatal("Offer failed on empty channel")
	}

	deadline := time.After(2 * time.Second)
	for len(n.Paths()) == 0 {
		select {
		case <-deadline:
			t.Fatal("notifier was not called")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	paths := n.Paths()
	if filepath.Base(paths[0]) != "01-06-25.csv" {
		t.Errorf("notified path = %s", paths[0])
	}
}

func TestOfferDropsWhenFull(t *testing.T) {
	ch := make(chan SensorRecord, 1)
	if !Offer(ch, SensorRecord{}) {
		t.Fatal("first Offer should succeed")
	}
	if Offer(ch, SensorRecord{}) {
		t.Error("Offer on a full channel should report false, not block")
	}
}

package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/monitoring"
)

// FileStore writes captured JPEG images under the data directory with
// sequential names and enumerates CSV files pending upload.
type FileStore struct {
	fs  fsutil.FileSystem
	dir string
	seq atomic.Uint64
}

// NewFileStore creates a FileStore rooted at dir. Existing numbered images
// are scanned so numbering resumes instead of overwriting after a restart.
func NewFileStore(fs fsutil.FileSystem, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	s := &FileStore{fs: fs, dir: dir}

	entries, err := fs.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, "_img.jpg") {
				continue
			}
			n, err := strconv.ParseUint(strings.TrimSuffix(name, "_img.jpg"), 10, 64)
			if err != nil {
				continue
			}
			if n+1 > s.seq.Load() {
				s.seq.Store(n + 1)
			}
		}
	}
	return s, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string { return s.dir }

// WriteJPEG persists one captured image and returns its path.
func (s *FileStore) WriteJPEG(data []byte) (string, error) {
	n := s.seq.Add(1) - 1
	path := filepath.Join(s.dir, fmt.Sprintf("%d_img.jpg", n))
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	monitoring.Logf("jpeg saved as %s (%d bytes)", path, len(data))
	return path, nil
}

// PendingCSVFiles lists the CSV log files currently on the medium. The
// upload pass enumerates at transfer time rather than tracking a queue, so
// files created while the radio was down are never missed.
func (s *FileStore) PendingCSVFiles() ([]string, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fsutil.HasSuffixFold(e.Name(), ".csv") {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	return out, nil
}

// PendingImageFiles lists the captured JPEG images on the medium.
func (s *FileStore) PendingImageFiles() ([]string, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), "_img.jpg") {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	return out, nil
}

// Remove deletes a file from the medium, typically after a successful
// upload.
func (s *FileStore) Remove(path string) error {
	return s.fs.Remove(path)
}

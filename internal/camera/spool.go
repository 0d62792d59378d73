package camera

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/monitoring"
	"github.com/spaia-earth/fieldcam/internal/timeutil"
)

// ErrNoFrame is returned when the spool has no frame within the wait
// budget.
var ErrNoFrame = errors.New("no frame available in spool")

// SpoolDriver implements Driver on top of a spool directory fed by an
// external capture process. Scan frames arrive as raw grayscale buffers in
// <dir>/scan, stills as JPEG streams in <dir>/still; the active Config
// selects which spool GetFrame drains. Files are consumed oldest first and
// removed once read.
type SpoolDriver struct {
	fs    fsutil.FileSystem
	dir   string
	clock timeutil.Clock

	mu     sync.Mutex
	cfg    Config
	inited bool
}

// NewSpoolDriver creates a SpoolDriver over dir.
func NewSpoolDriver(fs fsutil.FileSystem, dir string, clock timeutil.Clock) *SpoolDriver {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SpoolDriver{fs: fs, dir: dir, clock: clock}
}

func (d *SpoolDriver) spoolDir(cfg Config) string {
	if cfg.Format == FormatJPEG {
		return filepath.Join(d.dir, "still")
	}
	return filepath.Join(d.dir, "scan")
}

// Init selects the active spool and makes sure it exists.
func (d *SpoolDriver) Init(cfg Config) error {
	dir := d.spoolDir(cfg)
	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating spool %s: %w", dir, err)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.inited = true
	d.mu.Unlock()
	monitoring.Logf("frame spool %s active at %dx%d", dir, cfg.Width, cfg.Height)
	return nil
}

// Deinit deactivates the driver. Spooled frames are left in place.
func (d *SpoolDriver) Deinit() error {
	d.mu.Lock()
	d.inited = false
	d.mu.Unlock()
	return nil
}

// GetFrame consumes the oldest spooled frame, waiting briefly for one to
// arrive.
func (d *SpoolDriver) GetFrame() (*Frame, error) {
	d.mu.Lock()
	cfg := d.cfg
	inited := d.inited
	d.mu.Unlock()
	if !inited {
		return nil, errors.New("spool driver not initialized")
	}

	dir := d.spoolDir(cfg)
	const attempts = 10
	for i := 0; i < attempts; i++ {
		path, ok, err := d.oldest(dir)
		if err != nil {
			return nil, err
		}
		if ok {
			data, err := d.fs.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading spooled frame %s: %w", path, err)
			}
			if rerr := d.fs.Remove(path); rerr != nil {
				monitoring.Logf("removing consumed frame %s: %v", path, rerr)
			}
			if cfg.Format == FormatGrayscale && len(data) != cfg.Width*cfg.Height {
				return nil, fmt.Errorf("spooled frame %s is %d bytes, want %d", path, len(data), cfg.Width*cfg.Height)
			}
			return &Frame{Data: data, Width: cfg.Width, Height: cfg.Height, Format: cfg.Format}, nil
		}
		d.clock.Sleep(50 * time.Millisecond)
	}
	return nil, ErrNoFrame
}

// ReturnFrame is a no-op; spooled frames are plain heap buffers.
func (d *SpoolDriver) ReturnFrame(f *Frame) {}

func (d *SpoolDriver) oldest(dir string) (string, bool, error) {
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return "", false, fmt.Errorf("listing spool %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", false, nil
	}
	// Capture processes name frames monotonically, so lexicographic order
	// is arrival order.
	sort.Strings(names)
	return filepath.Join(dir, names[0]), true, nil
}

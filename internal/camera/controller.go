package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaia-earth/fieldcam/internal/climate"
	"github.com/spaia-earth/fieldcam/internal/monitoring"
	"github.com/spaia-earth/fieldcam/internal/storage"
	"github.com/spaia-earth/fieldcam/internal/timeutil"
	"github.com/spaia-earth/fieldcam/internal/vision"
)

// State is the controller's externally visible mode.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateCapturing
	StateRestoring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCapturing:
		return "capturing"
	case StateRestoring:
		return "restoring"
	default:
		return "unknown"
	}
}

// jpegSOI is the JPEG start-of-image marker.
var jpegSOI = []byte{0xFF, 0xD8}

// ErrNoJPEG is returned when a capture buffer contains no JPEG stream.
var ErrNoJPEG = errors.New("capture buffer contains no JPEG start marker")

// EventRecorder persists motion events. Optional.
type EventRecorder interface {
	RecordMotionEvent(detectedAt time.Time, boxCount int, bboxes, imagePath string) (string, error)
}

// ClimateSource supplies the latest environmental reading to stamp onto
// sensor rows.
type ClimateSource interface {
	Latest() (climate.Reading, bool)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	// ScanInterval between motion scans. Default 500ms.
	ScanInterval time.Duration

	// SettleDelay after a sensor deinit before reinitializing. Default 100ms.
	SettleDelay time.Duration

	// MaxInitRetries bounds sensor init attempts per mode switch. Default 3.
	MaxInitRetries int

	// RetryStep is the base of the linearly growing delay between init
	// retries. Default 250ms.
	RetryStep time.Duration

	// Clock abstracts settle and retry waits for tests.
	Clock timeutil.Clock
}

func (o *Options) applyDefaults() {
	if o.ScanInterval <= 0 {
		o.ScanInterval = 500 * time.Millisecond
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.MaxInitRetries <= 0 {
		o.MaxInitRetries = 3
	}
	if o.RetryStep <= 0 {
		o.RetryStep = 250 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
}

// Controller owns the sensor mode state machine. The scan loop runs the
// motion pipeline on low resolution frames; a detection switches the sensor
// to high resolution for one still, then restores scan mode whatever
// happened in between.
type Controller struct {
	driver   Driver
	seg      *vision.Segmenter
	store    *storage.FileStore
	events   EventRecorder
	climate  ClimateSource
	records  chan<- storage.SensorRecord
	notifier storage.Notifier
	clock    timeutil.Clock

	scanCfg    Config
	captureCfg Config
	opts       Options

	// mu serializes sensor access. The scan tick uses TryLock so ticks are
	// skipped, not queued, while a capture or manual request holds the
	// sensor.
	mu sync.Mutex

	stateMu       sync.Mutex
	state         State
	detections    int64
	lastDetection time.Time
}

// Stats is a snapshot of detection activity for the status API.
type Stats struct {
	Detections    int64     `json:"detections"`
	LastDetection time.Time `json:"last_detection"`
}

// NewController wires a Controller. events, climateSrc, and notifier may be
// nil; records may be nil to disable sensor rows.
func NewController(driver Driver, seg *vision.Segmenter, store *storage.FileStore, events EventRecorder, climateSrc ClimateSource, records chan<- storage.SensorRecord, notifier storage.Notifier, opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		driver:     driver,
		seg:        seg,
		store:      store,
		events:     events,
		climate:    climateSrc,
		records:    records,
		notifier:   notifier,
		clock:      opts.Clock,
		scanCfg:    ScanConfig(),
		captureCfg: CaptureConfig(),
		opts:       opts,
	}
}

// State returns the controller's current mode.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Stats returns detection counters.
func (c *Controller) Stats() Stats {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return Stats{Detections: c.detections, LastDetection: c.lastDetection}
}

func (c *Controller) noteDetection(at time.Time) {
	c.stateMu.Lock()
	c.detections++
	c.lastDetection = at
	c.stateMu.Unlock()
}

// Run initializes the sensor in scan mode and scans until the context is
// cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.initWithRetries(c.scanCfg); err != nil {
		return fmt.Errorf("initial camera init: %w", err)
	}
	defer func() {
		if err := c.driver.Deinit(); err != nil {
			monitoring.Logf("camera deinit on shutdown: %v", err)
		}
	}()

	monitoring.Logf("camera controller started, scanning every %v", c.opts.ScanInterval)
	ticker := time.NewTicker(c.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("camera controller stopping")
			return nil
		case <-ticker.C:
			c.scanTick()
		}
	}
}

// scanTick runs one motion scan. If the sensor is busy the tick is dropped.
func (c *Controller) scanTick() {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	c.setState(StateScanning)
	defer c.setState(StateIdle)

	f, err := c.driver.GetFrame()
	if err != nil {
		monitoring.Logf("scan frame failed: %v", err)
		return
	}
	vf := vision.Frame{Width: f.Width, Height: f.Height, Pix: f.Data}
	res, derr := c.seg.Detect(vf)
	c.driver.ReturnFrame(f)
	if derr != nil {
		monitoring.Logf("motion detection failed: %v", derr)
		return
	}
	if !res.Detected {
		return
	}

	encoded, err := vision.EncodeBoxes(res.Boxes)
	if err != nil {
		monitoring.Logf("encoding boxes failed: %v", err)
		encoded = "[]"
	}
	monitoring.Logf("motion detected: %d boxes, %d changed pixels", len(res.Boxes), res.ChangedPixels)
	c.noteDetection(res.Timestamp)

	path, err := c.captureStill()
	if err != nil {
		monitoring.Logf("still capture failed: %v", err)
	}

	c.recordDetection(res, encoded, path)
}

// CaptureNow takes a still on demand, waiting for any scan in progress.
func (c *Controller) CaptureNow() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.captureStill()
	if err != nil {
		return "", err
	}
	if c.notifier != nil {
		if nerr := c.notifier.NotifyNewFile(path); nerr != nil {
			monitoring.Logf("notifying new image %s: %v", path, nerr)
		}
	}
	return path, nil
}

// captureStill switches the sensor to high resolution, takes one validated
// JPEG, and restores scan mode. Scan mode is restored even when the capture
// fails; a failed restore escalates to a full sensor reset. Callers must
// hold mu.
func (c *Controller) captureStill() (string, error) {
	c.setState(StateCapturing)
	defer c.setState(StateIdle)

	if err := c.driver.Deinit(); err != nil {
		monitoring.Logf("deinit before capture: %v", err)
	}
	c.clock.Sleep(c.opts.SettleDelay)

	if err := c.initWithRetries(c.captureCfg); err != nil {
		c.restoreScanMode()
		return "", fmt.Errorf("switching to capture mode: %w", err)
	}
	defer c.restoreScanMode()

	// The first frame after a mode switch can be stale or half exposed.
	// Take one and throw it away.
	if f, err := c.driver.GetFrame(); err == nil {
		c.driver.ReturnFrame(f)
	}

	f, err := c.driver.GetFrame()
	if err != nil {
		return "", fmt.Errorf("capturing still: %w", err)
	}
	defer c.driver.ReturnFrame(f)

	jpeg, err := extractJPEG(f.Data)
	if err != nil {
		return "", err
	}
	return c.store.WriteJPEG(jpeg)
}

// restoreScanMode puts the sensor back into the scan configuration. Called
// with mu held.
func (c *Controller) restoreScanMode() {
	c.setState(StateRestoring)

	if err := c.driver.Deinit(); err != nil {
		monitoring.Logf("deinit during restore: %v", err)
	}
	c.clock.Sleep(c.opts.SettleDelay)

	if err := c.initWithRetries(c.scanCfg); err != nil {
		monitoring.Logf("failed to restore scan mode, performing full camera reset: %v", err)
		c.fullReset()
	}
}

// fullReset is the last resort after a failed restore: power the sensor
// fully down, wait longer, and bring it up in scan mode from scratch.
func (c *Controller) fullReset() {
	if err := c.driver.Deinit(); err != nil {
		monitoring.Logf("deinit during full reset: %v", err)
	}
	c.clock.Sleep(5 * c.opts.SettleDelay)
	if err := c.initWithRetries(c.scanCfg); err != nil {
		monitoring.Logf("camera unrecoverable after full reset: %v", err)
	} else {
		monitoring.Logf("camera recovered by full reset")
	}
}

// initWithRetries initializes the sensor, retrying with a linearly growing
// delay.
func (c *Controller) initWithRetries(cfg Config) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxInitRetries; attempt++ {
		if err := c.driver.Init(cfg); err != nil {
			lastErr = err
			monitoring.Logf("camera init %dx%d %s failed (attempt %d/%d): %v",
				cfg.Width, cfg.Height, cfg.Format, attempt, c.opts.MaxInitRetries, err)
			c.clock.Sleep(time.Duration(attempt) * c.opts.RetryStep)
			continue
		}
		return nil
	}
	return fmt.Errorf("camera init failed after %d attempts: %w", c.opts.MaxInitRetries, lastErr)
}

// recordDetection persists and publishes one motion event.
func (c *Controller) recordDetection(res vision.MotionResult, encoded, imagePath string) {
	if c.events != nil {
		if _, err := c.events.RecordMotionEvent(res.Timestamp, len(res.Boxes), encoded, imagePath); err != nil {
			monitoring.Logf("recording motion event: %v", err)
		}
	}

	if c.records != nil {
		rec := storage.SensorRecord{Timestamp: res.Timestamp, BBoxes: encoded}
		if c.climate != nil {
			if r, ok := c.climate.Latest(); ok {
				rec.Temperature = r.Temperature
				rec.Humidity = r.Humidity
				rec.Pressure = r.Pressure
			}
		}
		if !storage.Offer(c.records, rec) {
			monitoring.Logf("sensor record channel full, dropping detection row")
		}
	}

	if imagePath != "" && c.notifier != nil {
		if err := c.notifier.NotifyNewFile(imagePath); err != nil {
			monitoring.Logf("notifying new image %s: %v", imagePath, err)
		}
	}
}

// extractJPEG validates a capture buffer, scanning forward to the JPEG
// start-of-image marker and trimming any leading junk the sensor DMA left
// behind.
func extractJPEG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoJPEG
	}
	i := bytes.Index(data, jpegSOI)
	if i < 0 {
		return nil, ErrNoJPEG
	}
	if i > 0 {
		monitoring.Logf("trimmed %d junk bytes before JPEG start marker", i)
	}
	return data[i:], nil
}

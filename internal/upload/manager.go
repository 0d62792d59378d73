// Package upload implements the upload scheduling controller: an event and
// timer driven loop that decides when queued sensor files are actually
// transmitted, applies exponential backoff on failure, and keeps the radio
// powered down between passes.
package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spaia-earth/fieldcam/internal/monitoring"
	"github.com/spaia-earth/fieldcam/internal/timeutil"
)

// ErrBusy is returned when the configuration lock could not be acquired
// within the timeout. Callers treat it as transient, not fatal.
var ErrBusy = errors.New("upload manager: configuration busy")

// Transfer is the bulk file transfer collaborator.
type Transfer interface {
	// Enqueue hands one file to the transfer worker.
	Enqueue(path, url string) error

	// UploadAllPending transmits everything currently awaiting upload.
	UploadAllPending() error
}

// Connectivity is the radio power collaborator.
type Connectivity interface {
	IsConnected() bool
	Enable() error
	Disable() error
}

// PassRecorder persists upload pass outcomes. Optional.
type PassRecorder interface {
	UploadPassCompleted(startedAt time.Time, ok bool, failedAttempts int, errMsg string)
}

// Config configures a Manager.
type Config struct {
	// IntervalSeconds between scheduled uploads; 0 selects real-time mode
	// where every new file is transmitted immediately.
	IntervalSeconds int

	// UploadURL is the destination handed to the transfer collaborator.
	UploadURL string

	// InitialBackoff after the first failed pass. Default 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth. Default 32s.
	MaxBackoff time.Duration

	// ConnectSettle is how long to wait after powering the radio on before
	// confirming the link. Default 1s.
	ConnectSettle time.Duration

	// Clock abstracts waits for tests. Default timeutil.RealClock.
	Clock timeutil.Clock

	// Recorder, if set, is told the outcome of every upload pass.
	Recorder PassRecorder
}

const (
	// maxResponsivenessWait bounds interval-mode waits so interval changes
	// are noticed promptly even with very long intervals.
	maxResponsivenessWait = 10 * time.Minute

	// configLockTimeout bounds configuration lock acquisition.
	configLockTimeout = 100 * time.Millisecond

	// maxBackoffShift caps the exponent considered for the geometric
	// backoff so high attempt counts cannot overflow the shift.
	maxBackoffShift = 16
)

// Manager owns the upload scheduling state. One controller goroutine waits
// on the trigger and config-changed flags; external callers signal it via
// UploadNow, SetInterval, and NotifyNewFile.
type Manager struct {
	transfer Transfer
	conn     Connectivity
	recorder PassRecorder
	clock    timeutil.Clock

	// sem is a capacity-1 semaphore standing in for a mutex with a bounded
	// acquisition wait.
	sem chan struct{}
	// Fields below are guarded by sem.
	intervalSeconds int
	lastUploadTime  time.Time
	failedAttempts  int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	uploadURL       string

	// trigger and configChanged are latching event flags: raising an
	// already-raised flag is a no-op.
	trigger       chan struct{}
	configChanged chan struct{}

	connectSettle time.Duration

	runMu   sync.Mutex
	running bool
}

// NewManager creates a Manager. Start must be called to run the controller.
func NewManager(cfg Config, transfer Transfer, conn Connectivity) *Manager {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 32 * time.Second
	}
	if cfg.ConnectSettle <= 0 {
		cfg.ConnectSettle = time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		transfer:        transfer,
		conn:            conn,
		recorder:        cfg.Recorder,
		clock:           clock,
		sem:             make(chan struct{}, 1),
		intervalSeconds: cfg.IntervalSeconds,
		lastUploadTime:  clock.Now(),
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,
		uploadURL:       cfg.UploadURL,
		trigger:         make(chan struct{}, 1),
		configChanged:   make(chan struct{}, 1),
		connectSettle:   cfg.ConnectSettle,
	}
}

// Start launches the controller goroutine. Repeated calls are a no-op once
// the controller is running.
func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		monitoring.Logf("upload manager already started")
		return
	}
	m.running = true

	if m.intervalSeconds == 0 {
		monitoring.Logf("upload manager started in real-time mode")
	} else {
		monitoring.Logf("upload manager started with %d second interval", m.intervalSeconds)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.run(ctx)
		m.runMu.Lock()
		m.running = false
		m.runMu.Unlock()
	}()
}

// acquire takes the configuration lock, giving up after the lock timeout.
func (m *Manager) acquire() bool {
	select {
	case m.sem <- struct{}{}:
		return true
	case <-m.clock.After(configLockTimeout):
		return false
	}
}

func (m *Manager) release() { <-m.sem }

// raise latches an event flag.
func raise(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// SetInterval updates the upload interval. The last-upload clock is reset to
// now so interval mode does not immediately fire after a reconfiguration.
func (m *Manager) SetInterval(seconds int) error {
	if !m.acquire() {
		monitoring.Logf("upload manager: lock timeout changing interval")
		return ErrBusy
	}
	m.intervalSeconds = seconds
	m.lastUploadTime = m.clock.Now()
	m.release()

	raise(m.configChanged)
	if seconds == 0 {
		monitoring.Logf("upload interval changed to real-time mode")
	} else {
		monitoring.Logf("upload interval changed to %d seconds", seconds)
	}
	return nil
}

// UploadNow requests an immediate upload pass.
func (m *Manager) UploadNow() error {
	monitoring.Logf("manual upload requested")
	raise(m.trigger)
	return nil
}

// NotifyNewFile tells the manager a file was created or updated. In
// real-time mode the file is handed to the transfer collaborator at once; in
// interval mode nothing extra is recorded, because the upload pass discovers
// pending files by directory scan at transfer time.
func (m *Manager) NotifyNewFile(path string) error {
	if !m.acquire() {
		monitoring.Logf("upload manager: lock timeout in NotifyNewFile")
		return ErrBusy
	}
	interval := m.intervalSeconds
	url := m.uploadURL
	m.release()

	if interval == 0 {
		monitoring.Logf("real-time upload mode: uploading %s", path)
		return m.transfer.Enqueue(path, url)
	}
	return nil
}

// Snapshot is a copy of the scheduler state for the status API.
type Snapshot struct {
	IntervalSeconds int       `json:"interval_seconds"`
	LastUploadTime  time.Time `json:"last_upload_time"`
	FailedAttempts  int       `json:"failed_attempts"`
}

// State returns a snapshot of the scheduler state.
func (m *Manager) State() (Snapshot, error) {
	if !m.acquire() {
		return Snapshot{}, ErrBusy
	}
	defer m.release()
	return Snapshot{
		IntervalSeconds: m.intervalSeconds,
		LastUploadTime:  m.lastUploadTime,
		FailedAttempts:  m.failedAttempts,
	}, nil
}

// Backoff returns the delay before the next attempt after `attempt`
// consecutive failures: a capped geometric sequence starting at initial and
// doubling per failure. The shift exponent is capped as well as the result,
// so arbitrarily high attempt counts are safe.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := initial << uint(shift)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// run is the controller loop. It recomputes the wait on every iteration:
// indefinite in real-time mode, time-until-due in interval mode clamped to
// the responsiveness ceiling.
func (m *Manager) run(ctx context.Context) {
	monitoring.Logf("upload controller started")
	for {
		wait, indefinite, ok := m.nextWait()
		if !ok {
			// Transient lock failure; retry shortly.
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(5 * time.Second):
			}
			continue
		}

		var timeout <-chan time.Time
		if !indefinite {
			timeout = m.clock.After(wait)
		}

		select {
		case <-ctx.Done():
			monitoring.Logf("upload controller stopping")
			return
		case <-m.trigger:
			monitoring.Logf("upload triggered by event")
			m.uploadPass()
		case <-m.configChanged:
			monitoring.Logf("upload configuration changed")
			// Recompute the wait with the new configuration.
		case <-timeout:
			if m.due() {
				monitoring.Logf("upload triggered by interval")
				m.uploadPass()
			}
		}
	}
}

// nextWait computes the controller's wait duration.
func (m *Manager) nextWait() (wait time.Duration, indefinite, ok bool) {
	if !m.acquire() {
		monitoring.Logf("upload manager: lock timeout in controller")
		return 0, false, false
	}
	defer m.release()

	if m.intervalSeconds == 0 {
		return 0, true, true
	}
	interval := time.Duration(m.intervalSeconds) * time.Second
	elapsed := m.clock.Since(m.lastUploadTime)
	remaining := interval - elapsed
	if remaining < 0 {
		remaining = 0
	}
	if remaining > maxResponsivenessWait {
		remaining = maxResponsivenessWait
	}
	return remaining, false, true
}

// due rechecks whether an interval upload is owed after a timeout wake-up.
func (m *Manager) due() bool {
	if !m.acquire() {
		return false
	}
	defer m.release()
	if m.intervalSeconds <= 0 {
		return false
	}
	return m.clock.Since(m.lastUploadTime) >= time.Duration(m.intervalSeconds)*time.Second
}

// uploadPass performs one upload attempt: power the radio if needed, hand
// off to the bulk transfer, and update the backoff state. The radio is
// powered back down afterwards only if it was off beforehand.
func (m *Manager) uploadPass() {
	startedAt := m.clock.Now()
	wasConnected := m.conn.IsConnected()

	if !wasConnected {
		monitoring.Logf("enabling radio for upload pass")
		if err := m.conn.Enable(); err != nil {
			monitoring.Logf("failed to enable radio, skipping upload: %v", err)
			m.recordPass(startedAt, false, "radio enable: "+err.Error())
			return
		}
		// Give the link time to come up before confirming it.
		m.clock.Sleep(m.connectSettle)
	}

	if !m.conn.IsConnected() {
		monitoring.Logf("radio not connected, cannot perform upload")
		m.recordPass(startedAt, false, "radio not connected")
		return
	}

	monitoring.Logf("performing upload pass")
	err := m.transfer.UploadAllPending()

	var backoff time.Duration
	attempts := 0
	if m.acquire() {
		if err == nil {
			m.lastUploadTime = m.clock.Now()
			m.failedAttempts = 0
		} else {
			m.failedAttempts++
			attempts = m.failedAttempts
			backoff = Backoff(attempts, m.initialBackoff, m.maxBackoff)
		}
		m.release()
	} else {
		monitoring.Logf("upload manager: lock timeout updating backoff state")
	}

	if err == nil {
		monitoring.Logf("upload successful, reset backoff")
	} else {
		monitoring.Logf("upload failed (attempt %d), backing off for %v: %v", attempts, backoff, err)
	}

	if !wasConnected {
		monitoring.Logf("disabling radio after upload pass to save power")
		if derr := m.conn.Disable(); derr != nil {
			monitoring.Logf("failed to disable radio: %v", derr)
		}
	}

	if err == nil {
		m.recordPass(startedAt, true, "")
	} else {
		m.recordPass(startedAt, false, err.Error())
		m.clock.Sleep(backoff)
	}
}

func (m *Manager) recordPass(startedAt time.Time, ok bool, errMsg string) {
	if m.recorder == nil {
		return
	}
	attempts := 0
	if m.acquire() {
		attempts = m.failedAttempts
		m.release()
	}
	m.recorder.UploadPassCompleted(startedAt, ok, attempts, errMsg)
}

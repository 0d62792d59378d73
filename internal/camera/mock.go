package camera

import (
	"errors"
	"fmt"
	"sync"
)

// MockDriver implements Driver without hardware. It records every Init and
// Deinit so tests can assert on mode switch sequences, and its default
// frame generator produces a wandering bright block so dev mode sees
// periodic motion.
type MockDriver struct {
	mu          sync.Mutex
	cfg         Config
	inited      bool
	initHistory []Config
	deinitCount int
	frameCount  int
	outstanding int

	// InitErrFunc, if set, is consulted on every Init.
	InitErrFunc func(cfg Config) error

	// FrameFunc, if set, replaces the default frame generator. n counts
	// frames since the driver was created.
	FrameFunc func(cfg Config, n int) (*Frame, error)
}

// NewMockDriver creates a MockDriver.
func NewMockDriver() *MockDriver { return &MockDriver{} }

// Init records the requested configuration.
func (d *MockDriver) Init(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initHistory = append(d.initHistory, cfg)
	if d.InitErrFunc != nil {
		if err := d.InitErrFunc(cfg); err != nil {
			return err
		}
	}
	d.cfg = cfg
	d.inited = true
	return nil
}

// Deinit powers the mock sensor down.
func (d *MockDriver) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deinitCount++
	d.inited = false
	return nil
}

// GetFrame produces one frame in the active configuration.
func (d *MockDriver) GetFrame() (*Frame, error) {
	d.mu.Lock()
	if !d.inited {
		d.mu.Unlock()
		return nil, errors.New("mock camera not initialized")
	}
	cfg := d.cfg
	n := d.frameCount
	d.frameCount++
	frameFn := d.FrameFunc
	d.mu.Unlock()

	var f *Frame
	var err error
	if frameFn != nil {
		f, err = frameFn(cfg, n)
	} else {
		f, err = d.defaultFrame(cfg, n)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.outstanding++
	d.mu.Unlock()
	return f, nil
}

// ReturnFrame recycles a frame buffer.
func (d *MockDriver) ReturnFrame(f *Frame) {
	if f == nil {
		return
	}
	d.mu.Lock()
	if d.outstanding > 0 {
		d.outstanding--
	}
	d.mu.Unlock()
}

// InitHistory returns every configuration passed to Init, in order.
func (d *MockDriver) InitHistory() []Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Config(nil), d.initHistory...)
}

// LastConfig returns the most recently accepted configuration.
func (d *MockDriver) LastConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// DeinitCount returns how many times Deinit was called.
func (d *MockDriver) DeinitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deinitCount
}

// Outstanding returns how many frames have not been returned.
func (d *MockDriver) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

// FrameCount returns how many frames have been produced.
func (d *MockDriver) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameCount
}

func (d *MockDriver) defaultFrame(cfg Config, n int) (*Frame, error) {
	switch cfg.Format {
	case FormatGrayscale:
		pix := make([]byte, cfg.Width*cfg.Height)
		for i := range pix {
			pix[i] = 128
		}
		// A bright block wanders through the frame for a few ticks out of
		// every forty, giving dev mode something to detect.
		if n%40 < 8 {
			const size = 12
			x0 := (n * 3) % (cfg.Width - size)
			y0 := (n * 2) % (cfg.Height - size)
			for y := y0; y < y0+size; y++ {
				for x := x0; x < x0+size; x++ {
					pix[y*cfg.Width+x] = 220
				}
			}
		}
		return &Frame{Data: pix, Width: cfg.Width, Height: cfg.Height, Format: FormatGrayscale}, nil
	case FormatJPEG:
		data := []byte{
			0xFF, 0xD8, // SOI
			0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
			0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
			0xFF, 0xD9, // EOI
		}
		return &Frame{Data: data, Width: cfg.Width, Height: cfg.Height, Format: FormatJPEG}, nil
	default:
		return nil, fmt.Errorf("mock camera: unsupported format %v", cfg.Format)
	}
}

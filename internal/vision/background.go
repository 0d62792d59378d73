package vision

import (
	"github.com/spaia-earth/fieldcam/internal/monitoring"
)

const (
	// FrameInitCount is the number of frames accumulated before the
	// background model is considered initialized and motion detection may
	// begin.
	FrameInitCount = 20

	// DefaultAlpha is the exponential moving average fraction applied to
	// the background after warm-up. Lower values respond to quicker
	// movements, higher values reduce noise sensitivity.
	DefaultAlpha = 0.06
)

// BackgroundModel holds one reference grayscale image that adapts slowly to
// the scene. During warm-up the model accumulates a running mean of the first
// FrameInitCount frames; afterwards every frame is folded in with an
// exponential moving average so slow lighting drift is absorbed without
// erasing a genuinely static foreground object within a handful of frames.
//
// The model is owned exclusively by the segmentation pipeline and is only
// ever touched from the scan/capture goroutine, so it carries no lock.
type BackgroundModel struct {
	width       int
	height      int
	pixels      []float32 // len = width*height
	warmupCount int
	initialized bool

	// Alpha is the post-warm-up EMA fraction. Zero means DefaultAlpha.
	Alpha float64
}

// NewBackgroundModel returns an empty model. The buffer is allocated on the
// first Update, or explicitly via Init.
func NewBackgroundModel() *BackgroundModel {
	return &BackgroundModel{Alpha: DefaultAlpha}
}

// Init (re)allocates the reference buffer for the given dimensions and
// resets warm-up progress. Update calls it automatically whenever an incoming
// frame's dimensions differ from the stored ones.
func (m *BackgroundModel) Init(width, height int) {
	m.width = width
	m.height = height
	m.pixels = make([]float32, width*height)
	m.warmupCount = 0
	m.initialized = false
}

// Update folds one frame into the model. During warm-up the buffer is seeded
// with a copy of the first frame and then accumulated as a running mean;
// after warm-up an exponential moving average is applied. Initialized flips
// to true exactly once, when warm-up completes.
func (m *BackgroundModel) Update(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if m.pixels == nil || m.width != f.Width || m.height != f.Height {
		m.Init(f.Width, f.Height)
	}

	if m.warmupCount < FrameInitCount {
		if m.warmupCount == 0 {
			for i, p := range f.Pix {
				m.pixels[i] = float32(p)
			}
		} else {
			n := float32(m.warmupCount)
			for i, p := range f.Pix {
				m.pixels[i] = (m.pixels[i]*n + float32(p)) / (n + 1)
			}
		}
		m.warmupCount++
		if m.warmupCount >= FrameInitCount {
			m.initialized = true
			monitoring.Logf("background model initialized after %d frames", m.warmupCount)
		}
		return nil
	}

	alpha := float32(m.Alpha)
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	for i, p := range f.Pix {
		m.pixels[i] = (1-alpha)*m.pixels[i] + alpha*float32(p)
	}
	return nil
}

// Initialized reports whether warm-up has completed. No motion decision is
// produced while it is false.
func (m *BackgroundModel) Initialized() bool { return m.initialized }

// WarmupCount returns the number of warm-up frames absorbed so far.
func (m *BackgroundModel) WarmupCount() int { return m.warmupCount }

// Width returns the model width in pixels.
func (m *BackgroundModel) Width() int { return m.width }

// Height returns the model height in pixels.
func (m *BackgroundModel) Height() int { return m.height }

// At returns the reference value at buffer index i.
func (m *BackgroundModel) At(i int) float64 { return float64(m.pixels[i]) }

// Reset releases the buffer and clears warm-up progress.
func (m *BackgroundModel) Reset() {
	m.pixels = nil
	m.width = 0
	m.height = 0
	m.warmupCount = 0
	m.initialized = false
}

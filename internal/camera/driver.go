// Package camera drives the image sensor: a low resolution grayscale scan
// stream for motion detection, with temporary switches to high resolution
// JPEG capture when something moves.
package camera

// PixelFormat identifies the layout of a captured frame buffer.
type PixelFormat int

const (
	// FormatGrayscale is one byte per pixel, row major.
	FormatGrayscale PixelFormat = iota
	// FormatJPEG is a compressed JPEG byte stream.
	FormatJPEG
)

func (f PixelFormat) String() string {
	switch f {
	case FormatGrayscale:
		return "grayscale"
	case FormatJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// Config selects a sensor operating mode.
type Config struct {
	Width       int
	Height      int
	Format      PixelFormat
	JPEGQuality int
}

// ScanConfig is the low resolution grayscale mode used for continuous
// motion scanning.
func ScanConfig() Config {
	return Config{Width: 320, Height: 240, Format: FormatGrayscale}
}

// CaptureConfig is the high resolution JPEG mode used for stills.
func CaptureConfig() Config {
	return Config{Width: 1024, Height: 768, Format: FormatJPEG, JPEGQuality: 10}
}

// Frame is one captured buffer. For grayscale frames Data holds Width x
// Height pixel bytes; for JPEG frames it holds the compressed stream.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
}

// Driver abstracts the sensor hardware. Frames obtained from GetFrame must
// be handed back with ReturnFrame so the driver can recycle buffers.
type Driver interface {
	Init(cfg Config) error
	Deinit() error
	GetFrame() (*Frame, error)
	ReturnFrame(f *Frame)
}

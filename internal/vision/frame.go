// Package vision implements the motion perception pipeline for the camera
// sensor node: an adaptive grayscale background model, background-subtraction
// segmentation with connected-component labeling, bounding-box filtering and
// merging, and compact serialization of detections.
package vision

import "fmt"

// Frame is a read-only view of one grayscale camera frame. The pixel buffer
// is borrowed from the camera driver for the duration of one segmentation
// call and must not be retained.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8 // row-major, one byte per pixel, len = Width*Height
}

// Validate checks the frame dimensions against the pixel buffer.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame buffer length %d does not match %dx%d", len(f.Pix), f.Width, f.Height)
	}
	return nil
}

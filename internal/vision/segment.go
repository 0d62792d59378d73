package vision

import (
	"fmt"
	"math"
	"time"

	"github.com/spaia-earth/fieldcam/internal/monitoring"
)

// Params tunes the segmentation and box pipeline. Zero values fall back to
// the defaults from DefaultParams.
type Params struct {
	// Threshold is the per-pixel absolute difference against the background
	// above which a pixel counts as changed.
	Threshold float64

	// MinChangedPixels is the noise floor: frames with fewer changed pixels
	// skip labeling entirely.
	MinChangedPixels int

	// MinComponentPixels is the minimum pixel count for a connected
	// component to survive labeling.
	MinComponentPixels int

	// MaxComponents caps the number of simultaneous components for bounded
	// worst-case memory and time.
	MaxComponents int

	// MaxBoxArea drops boxes larger than this (whole-frame flicker).
	MaxBoxArea int

	// MinBoxArea drops boxes smaller than this (residual noise).
	MinBoxArea int

	// MergeIoU is the intersection-over-union threshold above which two
	// boxes are merged into their axis-aligned union.
	MergeIoU float64
}

// DefaultParams returns the field-tuned defaults.
func DefaultParams() Params {
	return Params{
		Threshold:          25,
		MinChangedPixels:   20,
		MinComponentPixels: 20,
		MaxComponents:      30,
		MaxBoxArea:         10000,
		MinBoxArea:         200,
		MergeIoU:           0.3,
	}
}

// MotionResult is the outcome of one segmentation call.
type MotionResult struct {
	Detected      bool
	Timestamp     time.Time
	Boxes         []BoundingBox
	ChangedPixels int
}

// Segmenter runs background subtraction and connected-component labeling
// over a stream of frames. It is not safe for concurrent use; the scan
// goroutine is its only caller.
type Segmenter struct {
	bg     *BackgroundModel
	params Params

	// visited is scratch for labeling, reused across calls and reallocated
	// on dimension change.
	visited []bool
	queue   []int

	// EnableDiagnostics logs residual statistics for frames that reach
	// labeling.
	EnableDiagnostics bool

	now func() time.Time
}

// NewSegmenter creates a Segmenter over the given background model.
func NewSegmenter(bg *BackgroundModel, params Params) *Segmenter {
	d := DefaultParams()
	if params.Threshold <= 0 {
		params.Threshold = d.Threshold
	}
	if params.MinChangedPixels <= 0 {
		params.MinChangedPixels = d.MinChangedPixels
	}
	if params.MinComponentPixels <= 0 {
		params.MinComponentPixels = d.MinComponentPixels
	}
	if params.MaxComponents <= 0 {
		params.MaxComponents = d.MaxComponents
	}
	if params.MaxBoxArea <= 0 {
		params.MaxBoxArea = d.MaxBoxArea
	}
	if params.MinBoxArea <= 0 {
		params.MinBoxArea = d.MinBoxArea
	}
	if params.MergeIoU <= 0 {
		params.MergeIoU = d.MergeIoU
	}
	return &Segmenter{bg: bg, params: params, now: time.Now}
}

// Params returns the active pipeline parameters.
func (s *Segmenter) Params() Params { return s.params }

// Background returns the underlying background model.
func (s *Segmenter) Background() *BackgroundModel { return s.bg }

// SetNow overrides the timestamp source. Tests use it for deterministic
// detection timestamps.
func (s *Segmenter) SetNow(now func() time.Time) { s.now = now }

// ChangedAt reports whether the pixel at (x, y) differs from the background
// by more than threshold. It is the single predicate the labeling BFS walks;
// neighbors are re-tested on the fly instead of consulting a precomputed
// mask, trading a little arithmetic for a width*height buffer.
func ChangedAt(f Frame, bg *BackgroundModel, threshold float64, x, y int) bool {
	i := y*f.Width + x
	return math.Abs(bg.At(i)-float64(f.Pix[i])) > threshold
}

// Detect updates the background model with the frame and, once the model is
// initialized, segments changed pixels into merged bounding boxes. Every
// frame teaches the background, including frames that produce no detection.
func (s *Segmenter) Detect(f Frame) (MotionResult, error) {
	if err := f.Validate(); err != nil {
		return MotionResult{}, fmt.Errorf("rejecting frame: %w", err)
	}

	if err := s.bg.Update(f); err != nil {
		return MotionResult{}, err
	}
	if !s.bg.Initialized() {
		return MotionResult{}, nil
	}

	changed := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if ChangedAt(f, s.bg, s.params.Threshold, x, y) {
				changed++
			}
		}
	}
	// Quiet frames short-circuit before the labeling pass.
	if changed < s.params.MinChangedPixels {
		return MotionResult{ChangedPixels: changed}, nil
	}

	if s.EnableDiagnostics {
		st := ComputeResidualStats(f, s.bg)
		monitoring.Logf("segmentation: changed=%d residual mean=%.2f stddev=%.2f max=%.0f",
			changed, st.Mean, st.StdDev, st.Max)
	}

	boxes := s.label(f)
	if len(boxes) == 0 {
		return MotionResult{ChangedPixels: changed}, nil
	}

	boxes = filterLargeBoxes(boxes, s.params.MaxBoxArea)
	boxes = mergeOverlapping(boxes, s.params.MergeIoU)
	boxes = filterSmallBoxes(boxes, s.params.MinBoxArea)
	boxes = filterEdgeTouchingBoxes(boxes, f.Width, f.Height)

	if len(boxes) == 0 {
		return MotionResult{ChangedPixels: changed}, nil
	}

	out := make([]BoundingBox, len(boxes))
	copy(out, boxes)
	return MotionResult{
		Detected:      true,
		Timestamp:     s.now(),
		Boxes:         out,
		ChangedPixels: changed,
	}, nil
}

// label runs 8-connected breadth-first flood fills over the changed-pixel
// predicate and returns the bounding boxes of components that reach
// MinComponentPixels. Labeling stops once MaxComponents boxes are collected.
func (s *Segmenter) label(f Frame) []BoundingBox {
	n := f.Width * f.Height
	if cap(s.visited) < n {
		s.visited = make([]bool, n)
	} else {
		s.visited = s.visited[:n]
		for i := range s.visited {
			s.visited[i] = false
		}
	}

	var boxes []BoundingBox
	for y := 0; y < f.Height && len(boxes) < s.params.MaxComponents; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			if s.visited[i] || !ChangedAt(f, s.bg, s.params.Threshold, x, y) {
				continue
			}

			box, count := s.floodFill(f, x, y)
			if count >= s.params.MinComponentPixels {
				boxes = append(boxes, box)
				if len(boxes) >= s.params.MaxComponents {
					break
				}
			}
		}
	}
	return boxes
}

// floodFill explores one 8-connected component seeded at (x, y), marking
// pixels visited and accumulating the bounding extremes and pixel count.
func (s *Segmenter) floodFill(f Frame, x, y int) (BoundingBox, int) {
	seed := y*f.Width + x
	s.visited[seed] = true
	s.queue = append(s.queue[:0], seed)

	box := BoundingBox{XMin: x, YMin: y, XMax: x, YMax: y}
	count := 0

	for len(s.queue) > 0 {
		cur := s.queue[0]
		s.queue = s.queue[1:]
		count++

		cx := cur % f.Width
		cy := cur / f.Width
		box.XMin = min(box.XMin, cx)
		box.YMin = min(box.YMin, cy)
		box.XMax = max(box.XMax, cx)
		box.YMax = max(box.YMax, cy)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := cx+dx, cy+dy
				if nx < 0 || nx >= f.Width || ny < 0 || ny >= f.Height {
					continue
				}
				ni := ny*f.Width + nx
				if s.visited[ni] || !ChangedAt(f, s.bg, s.params.Threshold, nx, ny) {
					continue
				}
				s.visited[ni] = true
				s.queue = append(s.queue, ni)
			}
		}
	}
	return box, count
}

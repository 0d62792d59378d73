package vision

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// warmedSegmenter returns a segmenter whose background has settled on a
// uniform frame of value bg.
func warmedSegmenter(t *testing.T, w, h int, bg uint8, params Params) *Segmenter {
	t.Helper()
	s := NewSegmenter(NewBackgroundModel(), params)
	f := uniformFrame(w, h, bg)
	for i := 0; i < FrameInitCount; i++ {
		res, err := s.Detect(f)
		if err != nil {
			t.Fatalf("warm-up Detect failed: %v", err)
		}
		if res.Detected {
			t.Fatalf("motion reported during warm-up frame %d", i)
		}
	}
	if !s.Background().Initialized() {
		t.Fatal("background not initialized after warm-up")
	}
	return s
}

// testParams relaxes the size filters so small synthetic frames can produce
// detections.
func testParams() Params {
	return Params{
		Threshold:          25,
		MinChangedPixels:   1,
		MinComponentPixels: 1,
		MaxComponents:      30,
		MaxBoxArea:         10000,
		MinBoxArea:         1,
		MergeIoU:           0.3,
	}
}

func TestDetectNoMotionBeforeWarmup(t *testing.T) {
	s := NewSegmenter(NewBackgroundModel(), testParams())

	quiet := uniformFrame(4, 4, 50)
	moving := uniformFrame(4, 4, 250)
	for i := 0; i < FrameInitCount-1; i++ {
		var f Frame
		if i%2 == 0 {
			f = quiet
		} else {
			f = moving
		}
		res, err := s.Detect(f)
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if res.Detected {
			t.Fatalf("motion reported before warm-up completed (frame %d)", i)
		}
		if s.Background().Initialized() {
			t.Fatalf("background initialized early at frame %d", i)
		}
	}
}

func TestDetectSingleBlock(t *testing.T) {
	s := warmedSegmenter(t, 4, 4, 50, testParams())
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	s.SetNow(func() time.Time { return at })

	// 2x2 block at rows/cols 1..2 differing by more than the threshold.
	f := uniformFrame(4, 4, 50)
	for _, y := range []int{1, 2} {
		for _, x := range []int{1, 2} {
			f.Pix[y*4+x] = 120
		}
	}

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !res.Detected {
		t.Fatal("expected motion")
	}
	if !res.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", res.Timestamp, at)
	}
	want := []BoundingBox{{XMin: 1, YMin: 1, XMax: 2, YMax: 2}}
	if diff := cmp.Diff(want, res.Boxes); diff != "" {
		t.Fatalf("boxes mismatch (-want +got):\n%s", diff)
	}

	encoded, err := EncodeBoxes(res.Boxes)
	if err != nil {
		t.Fatalf("EncodeBoxes failed: %v", err)
	}
	if encoded != `[{"x_min":1,"y_min":1,"x_max":2,"y_max":2}]` {
		t.Errorf("encoded = %s", encoded)
	}
}

func TestDetectNoiseFloorShortCircuit(t *testing.T) {
	params := testParams()
	params.MinChangedPixels = 10
	s := warmedSegmenter(t, 8, 8, 50, params)

	// Only 4 changed pixels: below the noise floor.
	f := uniformFrame(8, 8, 50)
	f.Pix[2*8+2] = 200
	f.Pix[2*8+3] = 200
	f.Pix[3*8+2] = 200
	f.Pix[3*8+3] = 200

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Detected {
		t.Error("expected no motion below the changed-pixel noise floor")
	}
	if res.ChangedPixels != 4 {
		t.Errorf("ChangedPixels = %d, want 4", res.ChangedPixels)
	}
}

func TestDetectEdgeTouchingSuppressed(t *testing.T) {
	s := warmedSegmenter(t, 8, 8, 50, testParams())

	// Block touching x_min=0.
	f := uniformFrame(8, 8, 50)
	for y := 2; y <= 4; y++ {
		for x := 0; x <= 2; x++ {
			f.Pix[y*8+x] = 200
		}
	}

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Detected {
		t.Errorf("edge-touching component should be filtered, got %+v", res.Boxes)
	}
}

func TestDetectDropsOversizedComponent(t *testing.T) {
	params := testParams()
	params.MaxBoxArea = 8
	s := warmedSegmenter(t, 8, 8, 50, params)

	// 4x4 interior block, area 16 > MaxBoxArea.
	f := uniformFrame(8, 8, 50)
	for y := 2; y <= 5; y++ {
		for x := 2; x <= 5; x++ {
			f.Pix[y*8+x] = 200
		}
	}

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Detected {
		t.Errorf("oversized component should be filtered, got %+v", res.Boxes)
	}
}

func TestDetectDiagonalConnectivity(t *testing.T) {
	s := warmedSegmenter(t, 8, 8, 50, testParams())

	// Diagonal run: 8-connected labeling groups it into one component.
	f := uniformFrame(8, 8, 50)
	f.Pix[1*8+1] = 200
	f.Pix[2*8+2] = 200
	f.Pix[3*8+3] = 200

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !res.Detected {
		t.Fatal("expected motion")
	}
	if len(res.Boxes) != 1 {
		t.Fatalf("expected one component from diagonal run, got %d: %+v", len(res.Boxes), res.Boxes)
	}
	want := BoundingBox{XMin: 1, YMin: 1, XMax: 3, YMax: 3}
	if res.Boxes[0] != want {
		t.Errorf("box = %+v, want %+v", res.Boxes[0], want)
	}
}

func TestDetectComponentCap(t *testing.T) {
	params := testParams()
	params.MaxComponents = 2
	s := warmedSegmenter(t, 16, 16, 50, params)

	// Four well-separated interior blobs; labeling must stop at the cap.
	f := uniformFrame(16, 16, 50)
	for _, origin := range [][2]int{{2, 2}, {2, 10}, {10, 2}, {10, 10}} {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				f.Pix[(origin[1]+dy)*16+origin[0]+dx] = 200
			}
		}
	}

	res, err := s.Detect(f)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Boxes) > 2 {
		t.Errorf("component cap exceeded: %d boxes", len(res.Boxes))
	}
}

func TestDetectRejectsMalformedFrame(t *testing.T) {
	s := NewSegmenter(NewBackgroundModel(), testParams())
	if _, err := s.Detect(Frame{Width: 4, Height: 4, Pix: make([]uint8, 5)}); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestChangedAtPredicate(t *testing.T) {
	bg := NewBackgroundModel()
	f := uniformFrame(4, 4, 100)
	for i := 0; i < FrameInitCount; i++ {
		bg.Update(f)
	}

	probe := uniformFrame(4, 4, 100)
	probe.Pix[1*4+2] = 140

	if !ChangedAt(probe, bg, 25, 2, 1) {
		t.Error("pixel differing by 40 should be changed at threshold 25")
	}
	if ChangedAt(probe, bg, 25, 0, 0) {
		t.Error("unchanged pixel reported as changed")
	}
	if ChangedAt(probe, bg, 45, 2, 1) {
		t.Error("pixel differing by 40 should not be changed at threshold 45")
	}
}

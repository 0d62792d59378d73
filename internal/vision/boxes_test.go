package vision

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIoU(t *testing.T) {
	a := BoundingBox{XMin: 0, YMin: 0, XMax: 3, YMax: 3} // 16 px
	b := BoundingBox{XMin: 2, YMin: 2, XMax: 5, YMax: 5} // 16 px, 4 px overlap

	if got := Intersection(a, b); got != 4 {
		t.Errorf("Intersection = %d, want 4", got)
	}
	want := 4.0 / 28.0
	if got := IoU(a, b); got < want-1e-9 || got > want+1e-9 {
		t.Errorf("IoU = %v, want %v", got, want)
	}
}

func TestIoUDisjoint(t *testing.T) {
	a := BoundingBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
	b := BoundingBox{XMin: 5, YMin: 5, XMax: 6, YMax: 6}
	if got := IoU(a, b); got != 0 {
		t.Errorf("IoU of disjoint boxes = %v, want 0", got)
	}
}

func TestMergeIsUnion(t *testing.T) {
	a := BoundingBox{XMin: 1, YMin: 2, XMax: 4, YMax: 5}
	b := BoundingBox{XMin: 3, YMin: 0, XMax: 6, YMax: 4}
	got := Merge(a, b)
	want := BoundingBox{XMin: 1, YMin: 0, XMax: 6, YMax: 5}
	if got != want {
		t.Errorf("Merge = %+v, want %+v", got, want)
	}
}

func TestMergeOverlappingCollapsesAndIsIdempotent(t *testing.T) {
	boxes := []BoundingBox{
		{XMin: 0, YMin: 0, XMax: 9, YMax: 9},
		{XMin: 1, YMin: 1, XMax: 10, YMax: 10},
		{XMin: 50, YMin: 50, XMax: 59, YMax: 59},
	}

	merged := mergeOverlapping(boxes, 0.3)
	want := []BoundingBox{
		{XMin: 0, YMin: 0, XMax: 10, YMax: 10},
		{XMin: 50, YMin: 50, XMax: 59, YMax: 59},
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merge result mismatch (-want +got):\n%s", diff)
	}

	// A second pass over the result is a no-op.
	again := mergeOverlapping(append([]BoundingBox(nil), merged...), 0.3)
	if diff := cmp.Diff(merged, again); diff != "" {
		t.Errorf("merge pass is not idempotent (-first +second):\n%s", diff)
	}
}

func TestMergeOverlappingRechecksMergedBox(t *testing.T) {
	// The third box only overlaps the union of the first two; the merged
	// index must be rechecked so all three collapse.
	boxes := []BoundingBox{
		{XMin: 0, YMin: 0, XMax: 5, YMax: 9},
		{XMin: 4, YMin: 0, XMax: 9, YMax: 9},
		{XMin: 7, YMin: 0, XMax: 12, YMax: 9},
	}
	merged := mergeOverlapping(boxes, 0.15)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged box, got %d: %+v", len(merged), merged)
	}
	want := BoundingBox{XMin: 0, YMin: 0, XMax: 12, YMax: 9}
	if merged[0] != want {
		t.Errorf("merged box = %+v, want %+v", merged[0], want)
	}
}

func TestFilterLargeBoxes(t *testing.T) {
	boxes := []BoundingBox{
		{XMin: 0, YMin: 0, XMax: 99, YMax: 99}, // 10000 px
		{XMin: 0, YMin: 0, XMax: 9, YMax: 9},   // 100 px
	}
	got := filterLargeBoxes(boxes, 5000)
	if len(got) != 1 || got[0].Area() != 100 {
		t.Errorf("filterLargeBoxes kept %+v", got)
	}
}

func TestFilterSmallBoxes(t *testing.T) {
	boxes := []BoundingBox{
		{XMin: 0, YMin: 0, XMax: 1, YMax: 1},   // 4 px
		{XMin: 0, YMin: 0, XMax: 19, YMax: 19}, // 400 px
	}
	got := filterSmallBoxes(boxes, 200)
	if len(got) != 1 || got[0].Area() != 400 {
		t.Errorf("filterSmallBoxes kept %+v", got)
	}
}

func TestFilterEdgeTouchingBoxes(t *testing.T) {
	// A box touching x_min=0 on an 8x8 frame is removed regardless of size.
	boxes := []BoundingBox{
		{XMin: 0, YMin: 2, XMax: 3, YMax: 5},
		{XMin: 2, YMin: 2, XMax: 5, YMax: 5},
		{XMin: 4, YMin: 4, XMax: 7, YMax: 6}, // touches x_max=7
	}
	got := filterEdgeTouchingBoxes(boxes, 8, 8)
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving box, got %d: %+v", len(got), got)
	}
	want := BoundingBox{XMin: 2, YMin: 2, XMax: 5, YMax: 5}
	if got[0] != want {
		t.Errorf("surviving box = %+v, want %+v", got[0], want)
	}
}

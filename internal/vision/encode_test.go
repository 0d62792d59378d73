package vision

import (
	"encoding/json"
	"testing"
)

func TestEncodeBoxesEmpty(t *testing.T) {
	got, err := EncodeBoxes(nil)
	if err != nil {
		t.Fatalf("EncodeBoxes failed: %v", err)
	}
	if got != "[]" {
		t.Errorf("empty encoding = %q, want []", got)
	}
}

func TestEncodeBoxesSingle(t *testing.T) {
	got, err := EncodeBoxes([]BoundingBox{{XMin: 1, YMin: 1, XMax: 2, YMax: 2}})
	if err != nil {
		t.Fatalf("EncodeBoxes failed: %v", err)
	}
	want := `[{"x_min":1,"y_min":1,"x_max":2,"y_max":2}]`
	if got != want {
		t.Errorf("encoding = %s, want %s", got, want)
	}
}

func TestEncodeBoxesMultipleRoundTrips(t *testing.T) {
	boxes := []BoundingBox{
		{XMin: 1, YMin: 2, XMax: 3, YMax: 4},
		{XMin: 10, YMin: 20, XMax: 30, YMax: 40},
		{XMin: 0, YMin: 0, XMax: 319, YMax: 239},
	}
	got, err := EncodeBoxes(boxes)
	if err != nil {
		t.Fatalf("EncodeBoxes failed: %v", err)
	}

	// Output is valid JSON carrying the same coordinates in order.
	var decoded []BoundingBox
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("encoded payload is not valid JSON: %v\n%s", err, got)
	}
	if len(decoded) != len(boxes) {
		t.Fatalf("decoded %d boxes, want %d", len(decoded), len(boxes))
	}
	for i := range boxes {
		if decoded[i] != boxes[i] {
			t.Errorf("box %d = %+v, want %+v", i, decoded[i], boxes[i])
		}
	}
}

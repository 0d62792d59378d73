package vision

import (
	"bytes"
	"fmt"
)

// EncodeBoxes serializes an ordered list of bounding boxes to a compact JSON
// array of {"x_min","y_min","x_max","y_max"} records. An empty list encodes
// to "[]". The returned string is the sole copy of the payload; ownership
// passes with it through the sensor-data channel to the storage consumer.
//
// The buffer grows as needed; output is never silently truncated. Failure to
// grow the buffer is reported as an error, not a crash.
func EncodeBoxes(boxes []BoundingBox) (out string, err error) {
	if len(boxes) == 0 {
		return "[]", nil
	}

	defer func() {
		if r := recover(); r != nil {
			if r == bytes.ErrTooLarge {
				out = ""
				err = fmt.Errorf("encoding %d boxes: %w", len(boxes), bytes.ErrTooLarge)
				return
			}
			panic(r)
		}
	}()

	var buf bytes.Buffer
	buf.Grow(len(boxes) * 48)
	buf.WriteByte('[')
	for i, b := range boxes {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"x_min":%d,"y_min":%d,"x_max":%d,"y_max":%d}`,
			b.XMin, b.YMin, b.XMax, b.YMax)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

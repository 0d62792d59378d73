package vision

// BoundingBox is an axis-aligned box in pixel coordinates. Coordinates are
// inclusive extremes: a single pixel has XMin == XMax and YMin == YMax.
type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Area returns the number of pixels covered by the box.
func (b BoundingBox) Area() int {
	return (b.XMax - b.XMin + 1) * (b.YMax - b.YMin + 1)
}

// Intersection returns the number of pixels shared by two boxes, 0 if they do
// not overlap.
func Intersection(a, b BoundingBox) int {
	xMin := max(a.XMin, b.XMin)
	yMin := max(a.YMin, b.YMin)
	xMax := min(a.XMax, b.XMax)
	yMax := min(a.YMax, b.YMax)
	if xMin > xMax || yMin > yMax {
		return 0
	}
	return (xMax - xMin + 1) * (yMax - yMin + 1)
}

// IoU returns the intersection-over-union ratio of two boxes. A union of
// zero yields 0 rather than a division fault.
func IoU(a, b BoundingBox) float64 {
	inter := Intersection(a, b)
	union := a.Area() + b.Area() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Merge returns the axis-aligned union of two boxes.
func Merge(a, b BoundingBox) BoundingBox {
	return BoundingBox{
		XMin: min(a.XMin, b.XMin),
		YMin: min(a.YMin, b.YMin),
		XMax: max(a.XMax, b.XMax),
		YMax: max(a.YMax, b.YMax),
	}
}

// filterLargeBoxes drops boxes whose area exceeds maxArea. Oversized boxes
// usually indicate whole-frame lighting flicker, not a moving object.
func filterLargeBoxes(boxes []BoundingBox, maxArea int) []BoundingBox {
	out := boxes[:0]
	for _, b := range boxes {
		if b.Area() <= maxArea {
			out = append(out, b)
		}
	}
	return out
}

// mergeOverlapping pairwise-merges boxes whose IoU exceeds the threshold,
// repeating until no pair exceeds it. After a merge the merged index is
// rechecked against all remaining boxes before advancing, so the result is a
// fixpoint: applying the pass again is a no-op.
func mergeOverlapping(boxes []BoundingBox, iouThreshold float64) []BoundingBox {
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			if IoU(boxes[i], boxes[j]) > iouThreshold {
				boxes[i] = Merge(boxes[i], boxes[j])
				boxes = append(boxes[:j], boxes[j+1:]...)
				j-- // recheck the merged box against the box now at j
			}
		}
	}
	return boxes
}

// filterSmallBoxes drops boxes whose area is below minArea (residual noise).
func filterSmallBoxes(boxes []BoundingBox, minArea int) []BoundingBox {
	out := boxes[:0]
	for _, b := range boxes {
		if b.Area() >= minArea {
			out = append(out, b)
		}
	}
	return out
}

// filterEdgeTouchingBoxes drops boxes touching any frame edge. An
// edge-touching box usually indicates a partially-exited object or a sensor
// artifact, not a stable event.
func filterEdgeTouchingBoxes(boxes []BoundingBox, width, height int) []BoundingBox {
	out := boxes[:0]
	for _, b := range boxes {
		if b.XMin == 0 || b.YMin == 0 || b.XMax == width-1 || b.YMax == height-1 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Package storage persists the sensor node's outputs: the day-partitioned
// CSV sensor log, captured JPEG images, and a sqlite event store used by the
// status API.
package storage

import "time"

// SensorRecord is one row of the sensor log. Producers (the motion pipeline
// and the climate poller) hand records by value into a bounded channel with
// a single consumer; the BBoxes payload is owned by exactly one holder at a
// time and travels with the record.
type SensorRecord struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Pressure    float64
	BBoxes      string
}

// Offer attempts a non-blocking send of rec. A full channel returns false;
// producers drop the record rather than stall.
func Offer(ch chan<- SensorRecord, rec SensorRecord) bool {
	select {
	case ch <- rec:
		return true
	default:
		return false
	}
}

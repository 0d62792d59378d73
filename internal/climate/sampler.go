// Package climate reads the environmental sensor attached over a serial
// link. The sensor module prints one comma separated line per measurement:
// temperature (celsius), relative humidity (percent), pressure (hPa).
package climate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/spaia-earth/fieldcam/internal/monitoring"
)

// Reading is one environmental measurement.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Sampler produces environmental readings.
type Sampler interface {
	Sample() (Reading, error)
	Close() error
}

// maxSkippedLines bounds how many malformed or empty lines one Sample call
// will discard before giving up.
const maxSkippedLines = 8

// SerialSampler reads measurements line by line from a serial port.
type SerialSampler struct {
	port    io.ReadCloser
	scanner *bufio.Scanner
}

// OpenSerialSampler opens the climate sensor at the given device path.
func OpenSerialSampler(path string) (*SerialSampler, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening climate sensor %s: %w", path, err)
	}
	return NewSerialSampler(port), nil
}

// NewSerialSampler wraps an already open port. Exposed separately so tests
// can substitute an in-memory stream.
func NewSerialSampler(port io.ReadCloser) *SerialSampler {
	return &SerialSampler{
		port:    port,
		scanner: bufio.NewScanner(port),
	}
}

// Sample reads the next valid measurement line, discarding malformed ones.
func (s *SerialSampler) Sample() (Reading, error) {
	for i := 0; i < maxSkippedLines; i++ {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Reading{}, fmt.Errorf("reading climate sensor: %w", err)
			}
			return Reading{}, fmt.Errorf("reading climate sensor: %w", io.EOF)
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		r, err := parseReading(line)
		if err != nil {
			monitoring.Logf("discarding malformed climate line %q: %v", line, err)
			continue
		}
		return r, nil
	}
	return Reading{}, errors.New("no valid climate reading in stream")
}

// Close closes the underlying port.
func (s *SerialSampler) Close() error { return s.port.Close() }

// parseReading parses "temperature,humidity,pressure".
func parseReading(line string) (Reading, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Reading{Temperature: vals[0], Humidity: vals[1], Pressure: vals[2]}, nil
}

package climate

import (
	"math/rand"
	"sync"
	"time"
)

// MockSampler generates plausible readings without hardware. Used in dev
// mode and in tests.
type MockSampler struct {
	mu   sync.Mutex
	base Reading
	rng  *rand.Rand
}

// NewMockSampler creates a MockSampler around temperate defaults.
func NewMockSampler() *MockSampler {
	return &MockSampler{
		base: Reading{Temperature: 21.5, Humidity: 60.0, Pressure: 1013.25},
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Sample returns the base reading with a little jitter.
func (m *MockSampler) Sample() (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Reading{
		Temperature: m.base.Temperature + m.rng.Float64() - 0.5,
		Humidity:    m.base.Humidity + 2*m.rng.Float64() - 1,
		Pressure:    m.base.Pressure + m.rng.Float64() - 0.5,
	}, nil
}

// Close is a no-op.
func (m *MockSampler) Close() error { return nil }

package climate

import (
	"context"
	"sync"
	"time"

	"github.com/spaia-earth/fieldcam/internal/monitoring"
	"github.com/spaia-earth/fieldcam/internal/storage"
)

// Poller samples the climate sensor on a fixed interval. Every sample is
// appended to the sensor log as a row without detections, and the latest
// reading is kept available for the capture pipeline to stamp onto motion
// rows.
type Poller struct {
	sampler  Sampler
	interval time.Duration
	records  chan<- storage.SensorRecord

	mu     sync.Mutex
	latest Reading
	primed bool
}

// NewPoller creates a Poller. records may be nil if periodic logging is not
// wanted.
func NewPoller(sampler Sampler, interval time.Duration, records chan<- storage.SensorRecord) *Poller {
	return &Poller{sampler: sampler, interval: interval, records: records}
}

// Latest returns the most recent reading, and false before the first
// successful sample.
func (p *Poller) Latest() (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.primed
}

// Run samples until the context is cancelled. The first sample happens
// immediately so Latest is primed before the first detection.
func (p *Poller) Run(ctx context.Context) {
	monitoring.Logf("climate poller started, sampling every %v", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("climate poller stopping")
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	r, err := p.sampler.Sample()
	if err != nil {
		monitoring.Logf("climate sample failed: %v", err)
		return
	}

	p.mu.Lock()
	p.latest = r
	p.primed = true
	p.mu.Unlock()

	if p.records == nil {
		return
	}
	rec := storage.SensorRecord{
		Timestamp:   time.Now(),
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
		BBoxes:      "[]",
	}
	if !storage.Offer(p.records, rec) {
		monitoring.Logf("sensor record channel full, dropping climate sample")
	}
}

// Package metrics records per-call latency for a run.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minTrackable = int64(time.Microsecond)
	maxTrackable = int64(10 * time.Minute)
)

// Latency is a concurrency-safe latency histogram.
type Latency struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatency creates an empty histogram tracking 1µs..10m at 3 significant
// figures.
func NewLatency() *Latency {
	return &Latency{hist: hdrhistogram.New(minTrackable, maxTrackable, 3)}
}

// Record adds one observation. Values outside the trackable range are clamped.
func (l *Latency) Record(d time.Duration) {
	v := int64(d)
	if v < minTrackable {
		v = minTrackable
	}
	if v > maxTrackable {
		v = maxTrackable
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.hist.RecordValue(v)
}

// Summary is a point-in-time view of a Latency histogram.
type Summary struct {
	Count int64         `json:"count"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Summary returns the current percentiles.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hist.TotalCount() == 0 {
		return Summary{}
	}
	return Summary{
		Count: l.hist.TotalCount(),
		Mean:  time.Duration(l.hist.Mean()),
		P50:   time.Duration(l.hist.ValueAtQuantile(50)),
		P99:   time.Duration(l.hist.ValueAtQuantile(99)),
		Max:   time.Duration(l.hist.Max()),
	}
}

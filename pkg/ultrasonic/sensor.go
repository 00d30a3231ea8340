// Package ultrasonic reads the forward-facing range sensor. A raw reader
// produces single pings; Filtered layers retries, median sampling and
// last-good fill on top so consumers see far fewer dropouts.
package ultrasonic

import (
	"errors"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Valid reading range in meters. The sensor reports garbage outside this
// window, so out-of-range pings are treated as failed reads.
const (
	MinDistanceM = 0.02
	MaxDistanceM = 4.00
)

const (
	defaultRetries  = 2
	defaultRetryGap = 4 * time.Millisecond
)

// ErrNoReading reports that no valid ping was obtained, after retries and
// with no previous good value to fall back on.
var ErrNoReading = errors.New("ultrasonic: no reading")

// Pinger takes one raw distance sample in meters. Implementations do no
// filtering; each call is a single sensor measurement.
type Pinger interface {
	Ping() (float64, error)
}

// Filtered wraps a raw Pinger with retries and last-good fill. It satisfies
// the range sensor contract consumed by the safety monitor.
type Filtered struct {
	pinger   Pinger
	retries  int
	retryGap time.Duration

	mu       sync.Mutex
	lastGood float64
	hasGood  bool
}

// NewFiltered wraps a raw pinger with the default retry policy.
func NewFiltered(pinger Pinger) *Filtered {
	return &Filtered{
		pinger:   pinger,
		retries:  defaultRetries,
		retryGap: defaultRetryGap,
	}
}

// ReadDistance returns one filtered distance in meters. Failed pings are
// retried; if every attempt fails the previous good value is returned, and
// ErrNoReading only when none exists yet.
func (f *Filtered) ReadDistance() (float64, error) {
	for attempt := 0; attempt <= f.retries; attempt++ {
		d, err := f.pinger.Ping()
		if err == nil && d >= MinDistanceM && d <= MaxDistanceM {
			f.mu.Lock()
			f.lastGood, f.hasGood = d, true
			f.mu.Unlock()
			return d, nil
		}
		if attempt < f.retries {
			time.Sleep(f.retryGap)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasGood {
		return f.lastGood, nil
	}
	return 0, ErrNoReading
}

// ReadMedian takes up to samples filtered readings and returns their median.
// Attempts that fail entirely are skipped; with no successful sample the
// last good value is returned, or ErrNoReading.
func (f *Filtered) ReadMedian(samples int) (float64, error) {
	vals := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		d, err := f.pinger.Ping()
		if err == nil && d >= MinDistanceM && d <= MaxDistanceM {
			vals = append(vals, d)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(vals) == 0 {
		if f.hasGood {
			return f.lastGood, nil
		}
		return 0, ErrNoReading
	}

	sort.Float64s(vals)
	m := stat.Quantile(0.5, stat.Empirical, vals, nil)
	f.lastGood, f.hasGood = m, true
	return m, nil
}

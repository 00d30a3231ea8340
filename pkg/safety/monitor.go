// Package safety implements the collision interlock for forward travel.
//
// The monitor samples the range sensor on demand, not from a background
// poller: motion code calls Check at every ramp step and constant-phase
// slice, bounding the latency between an obstacle appearing and the motors
// being cut.
package safety

import (
	"log/slog"
)

// DefaultThresholdM is the obstacle distance below which forward motion is
// aborted.
const DefaultThresholdM = 0.05

// RangeSensor reads the forward obstacle distance in meters. A returned
// error means no usable reading was obtained this sample.
type RangeSensor interface {
	ReadDistance() (float64, error)
}

// State is one interlock snapshot. Distance is nil when the sensor produced
// no reading.
type State struct {
	Safe     bool
	Distance *float64
}

// Monitor wraps a range sensor with the unsafe-distance threshold.
//
// Sensor errors are fail-open: a failed read is treated as safe. Ultrasonic
// sensors time out regularly in open rooms, so aborting on every failed
// read would stall most missions.
type Monitor struct {
	sensor    RangeSensor
	threshold float64
	logger    *slog.Logger
}

// NewMonitor creates a monitor tripping below thresholdM meters.
func NewMonitor(sensor RangeSensor, thresholdM float64, logger *slog.Logger) *Monitor {
	if thresholdM <= 0 {
		thresholdM = DefaultThresholdM
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sensor:    sensor,
		threshold: thresholdM,
		logger:    logger.With("component", "safety"),
	}
}

// Threshold returns the configured unsafe distance in meters.
func (m *Monitor) Threshold() float64 {
	return m.threshold
}

// Check samples the sensor once and classifies the result.
func (m *Monitor) Check() State {
	distance, err := m.sensor.ReadDistance()
	if err != nil {
		// Fail open: no reading is treated as clear.
		m.logger.Warn("range read failed, treating as safe", "error", err)
		return State{Safe: true}
	}

	d := distance
	if distance < m.threshold {
		return State{Safe: false, Distance: &d}
	}
	return State{Safe: true, Distance: &d}
}

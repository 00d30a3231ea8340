// Package drive implements differential-drive motion kinematics for the
// JetBot: velocity-ramp profiles, calibration compensation, and the
// collision-safety interleaving that turns abstract motion requests into
// time-domain wheel commands.
//
// One Engine owns one pair of wheels. Motion calls block for their full
// computed duration and must be serialized by the caller (see pkg/queue).
package drive

import "sync"

// Motor value limits. Commanded wheel magnitudes are always within
// [MinMotorValue, MaxMotorValue] or exactly zero; below MinMotorValue the
// wheels stall against static friction.
const (
	MaxMotorValue = 1.0
	MinMotorValue = 0.3
)

// Motors is the wheel velocity contract beneath the engine. Implementations
// drive real hardware (I2C motor controller) or a simulation. Values are
// signed, in [-1.0, 1.0], positive meaning forward.
type Motors interface {
	// SetVelocities commands both wheels in one call.
	SetVelocities(left, right float64) error

	// Stop cuts both motors to zero immediately, without ramping.
	Stop() error
}

// SimMotors is an in-memory Motors implementation used by the simulator and
// by tests. It records every commanded pair.
type SimMotors struct {
	mu          sync.Mutex
	left, right float64
	history     []VelocityPair
}

// VelocityPair is one recorded wheel command.
type VelocityPair struct {
	Left, Right float64
}

// NewSimMotors creates a simulated wheel pair at rest.
func NewSimMotors() *SimMotors {
	return &SimMotors{}
}

// SetVelocities records the commanded pair.
func (m *SimMotors) SetVelocities(left, right float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left, m.right = left, right
	m.history = append(m.history, VelocityPair{Left: left, Right: right})
	return nil
}

// Stop zeroes both wheels.
func (m *SimMotors) Stop() error {
	return m.SetVelocities(0, 0)
}

// Velocities returns the current commanded pair.
func (m *SimMotors) Velocities() (left, right float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.left, m.right
}

// History returns a copy of every commanded pair since construction.
func (m *SimMotors) History() []VelocityPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VelocityPair, len(m.history))
	copy(out, m.history)
	return out
}

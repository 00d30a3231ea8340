package drive

import "time"

// Calibration holds the measured drivetrain constants. The defaults come from
// bench calibration runs against the physical robot; override them from the
// config file when the chassis or battery pack changes.
type Calibration struct {
	// SpeedFactor converts a motor value into linear speed: a wheel
	// commanded at v moves at v*SpeedFactor meters per second.
	SpeedFactor float64 `yaml:"speed_factor"`

	// LeftMotorOffset is the constant value added to the left wheel during
	// forward travel to correct a measured leftward drift.
	LeftMotorOffset float64 `yaml:"left_motor_offset"`

	// TrackWidthM is the lateral distance between the drive wheels.
	TrackWidthM float64 `yaml:"track_width_m"`

	// RampRatio is the fraction of a movement's duration spent in each of
	// the acceleration and deceleration ramps.
	RampRatio float64 `yaml:"ramp_ratio"`

	// RampSteps is the number of discrete velocity steps per ramp.
	RampSteps int `yaml:"ramp_steps"`

	// MinRampTimeS is the minimum deceleration ramp length in seconds,
	// applied to rotations so short turns still stop smoothly.
	MinRampTimeS float64 `yaml:"min_ramp_time_s"`
}

// Empirical overshoot correction for in-place rotations beyond 90 degrees.
// The correction percentage grows linearly with the excess angle up to a cap.
const (
	overshootStart = 0.03
	overshootSlope = 0.00005
	overshootMax   = 0.07
)

// DefaultCalibration returns the constants measured on the reference JetBot.
func DefaultCalibration() Calibration {
	return Calibration{
		SpeedFactor:     0.1827,
		LeftMotorOffset: 0.0085,
		TrackWidthM:     0.0540,
		RampRatio:       0.25,
		RampSteps:       5,
		MinRampTimeS:    0.15,
	}
}

func (c Calibration) minRampTime() time.Duration {
	return time.Duration(c.MinRampTimeS * float64(time.Second))
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

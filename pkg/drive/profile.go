package drive

import (
	"math"
	"time"
)

// wheelPair is one signed left/right wheel command.
type wheelPair struct {
	left, right float64
}

// profile is the derived ramp plan for a single movement: target wheel values
// for the constant phase (calibration offset already folded in) and the
// accel/const/decel phase durations. Profiles are computed once per request
// and discarded after execution.
type profile struct {
	target   wheelPair
	offset   float64 // signed constant offset applied to the left wheel
	accel    time.Duration
	constant time.Duration
	decel    time.Duration
	guarded  bool // forward travel runs under the safety interlock
}

func (p profile) total() time.Duration {
	return p.accel + p.constant + p.decel
}

// applyOffset adds a calibration offset to a signed wheel value, clipping at
// the motor limit. It returns the adjusted value and the overflow that was
// clipped; the caller subtracts the overflow from the opposite wheel so the
// commanded heading is preserved. Shared by the distance and arc planners.
func applyOffset(value, offset float64) (adjusted, overflow float64) {
	v := value + offset
	if v > MaxMotorValue {
		return MaxMotorValue, v - MaxMotorValue
	}
	if v < -MaxMotorValue {
		return -MaxMotorValue, v + MaxMotorValue
	}
	return v, 0
}

// splitPhases divides a total duration into accel/const/decel using the
// calibrated ramp ratio; the three phases always sum to the total. Movements
// too short for full ramps get the ramps scaled down to fit.
func splitPhases(total time.Duration, ratio float64) (accel, constant, decel time.Duration) {
	accel = time.Duration(float64(total) * ratio)
	decel = accel
	constant = total - accel - decel
	if constant < 0 {
		ramps := accel + decel
		if ramps > 0 {
			scale := float64(total) / float64(ramps)
			accel = time.Duration(float64(accel) * scale)
			decel = total - accel
			constant = 0
		} else {
			accel, decel, constant = 0, 0, total
		}
	}
	return accel, constant, decel
}

// linearProfile plans a straight move of distanceM meters at the given speed.
// Duration is pure speed-times-time estimation from the calibrated speed
// factor; no encoder feedback exists, so ±20% error is expected.
func linearProfile(cal Calibration, distanceM, speed float64) profile {
	direction := 1.0
	if distanceM < 0 {
		direction = -1.0
	}

	motor := clamp(math.Abs(speed), MinMotorValue, MaxMotorValue)
	linear := motor * cal.SpeedFactor
	total := time.Duration(math.Abs(distanceM) / linear * float64(time.Second))
	accel, constant, decel := splitPhases(total, cal.RampRatio)

	base := motor * direction
	offset := cal.LeftMotorOffset * direction

	left, overflow := applyOffset(base, offset)
	right := base - overflow

	return profile{
		target:   wheelPair{left: left, right: right},
		offset:   offset - overflow,
		accel:    accel,
		constant: constant,
		decel:    decel,
		guarded:  direction > 0,
	}
}

// rotationProfile plans an in-place rotation. Each wheel travels half the
// track width per radian; large turns get the empirical overshoot correction.
// Rotation starts instantly (no accel ramp: a ramped start twists the robot
// off its pivot point) and only ramps the stop.
func rotationProfile(cal Calibration, angleDegrees, speed float64) profile {
	motor := clamp(math.Abs(speed), MinMotorValue, MaxMotorValue)
	linear := motor * cal.SpeedFactor

	angleAbs := math.Abs(angleDegrees)
	wheelDistance := (angleAbs * math.Pi / 180) * cal.TrackWidthM / 2
	total := time.Duration(wheelDistance / linear * float64(time.Second))

	if angleAbs > 90 {
		pct := overshootStart + (angleAbs-90)*overshootSlope
		if pct > overshootMax {
			pct = overshootMax
		}
		total = time.Duration(float64(total) * (1 - pct))
	}

	decel := time.Duration(float64(total) * cal.RampRatio)
	if decel < cal.minRampTime() {
		decel = cal.minRampTime()
	}
	constant := total - decel
	if constant < 0 {
		constant = time.Duration(float64(total) * 0.1)
		decel = total - constant
	}

	pair := wheelPair{left: motor, right: -motor}
	if angleDegrees < 0 {
		pair = wheelPair{left: -motor, right: motor}
	}

	return profile{
		target:   pair,
		accel:    0,
		constant: constant,
		decel:    decel,
		guarded:  false, // in-place turns run without the interlock
	}
}

// arcProfile plans a curved move along a circle of radiusM at angleDegrees of
// arc. The radius magnitude is floored at half the track width to avoid a
// singular turn center; the inner/outer wheel ratio follows from the wheel
// radii and is floored so the inner wheel never drops below the static
// friction threshold, which would distort the path.
func arcProfile(cal Calibration, radiusM, angleDegrees, speed float64) profile {
	direction := 1.0
	if angleDegrees < 0 {
		direction = -1.0
	}

	motor := clamp(math.Abs(speed), MinMotorValue, MaxMotorValue)
	halfTrack := cal.TrackWidthM / 2

	radius := math.Abs(radiusM)
	if radius < halfTrack {
		radius = halfTrack
	}
	outerRadius := radius + halfTrack
	innerRadius := radius - halfTrack

	ratio := innerRadius / outerRadius
	if minRatio := MinMotorValue / motor; ratio < minRatio {
		ratio = minRatio
	}

	outer := motor * direction
	inner := motor * ratio * direction

	// Positive radius turns left: the left wheel is the inner wheel.
	pair := wheelPair{left: inner, right: outer}
	if radiusM < 0 {
		pair = wheelPair{left: outer, right: inner}
	}

	arcLength := math.Abs(angleDegrees) * math.Pi / 180 * outerRadius
	total := time.Duration(arcLength / (motor * cal.SpeedFactor) * float64(time.Second))
	accel, constant, decel := splitPhases(total, cal.RampRatio)

	offset := 0.0
	if direction > 0 {
		adjusted, overflow := applyOffset(pair.left, cal.LeftMotorOffset)
		pair.left = adjusted
		pair.right -= overflow
		offset = cal.LeftMotorOffset - overflow
	}

	return profile{
		target:   pair,
		offset:   offset,
		accel:    accel,
		constant: constant,
		decel:    decel,
		guarded:  direction > 0,
	}
}

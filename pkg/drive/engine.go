package drive

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-jetbot/pkg/safety"
)

// Request bounds. Values outside these are rejected as invalid_movement
// before any motor command is issued.
const (
	maxDistanceM    = 10.0
	maxAngleDegrees = 720.0
	maxRadiusM      = 5.0
	minRadiusM      = 0.001
)

const (
	// safetySampleInterval bounds the gap between interlock samples during
	// forward motion, across every phase.
	safetySampleInterval = 50 * time.Millisecond

	// stopJitterFloor: deceleration values below this are snapped to zero
	// to avoid motor jitter at the tail of the ramp.
	stopJitterFloor = 0.05

	zeroEpsilon = 1e-6
)

// Status classifies the outcome of a movement. Callers must distinguish all
// three: a safety abort is recoverable, an invalid request never moved.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSafety    Status = "safety"
	StatusInvalid   Status = "invalid_movement"
)

// Info echoes the executed movement parameters back to the caller.
type Info struct {
	DistanceM    float64 `json:"distance_m,omitempty"`
	AngleDegrees float64 `json:"angle_degrees,omitempty"`
	RadiusM      float64 `json:"radius_m,omitempty"`
	Speed        float64 `json:"robot_speed,omitempty"`
	DurationS    float64 `json:"duration_s,omitempty"`
}

// Result is the outcome of one movement request. FinalDistance is the last
// ultrasonic reading in meters, nil when no sensor is fitted or the sensor
// produced no reading; on a safety abort it is the triggering distance.
type Result struct {
	Status        Status   `json:"status"`
	FinalDistance *float64 `json:"final_distance_m"`
	Info          Info     `json:"info"`
}

// Interlock is the safety gate consulted during forward travel. A nil
// interlock disables safety checking entirely.
type Interlock interface {
	Check() safety.State
}

// Engine converts motion requests into time-domain wheel commands. It runs
// synchronously on the calling goroutine; one motion call blocks for its
// full computed duration. Calls must not overlap; interleaved ramps would
// corrupt wheel state. Serialization is the caller's job (see queue.Executor).
type Engine struct {
	motors Motors
	guard  Interlock
	cal    Calibration
	logger *slog.Logger

	mu          sync.Mutex
	left, right float64
}

// NewEngine creates an engine over the given wheels. guard may be nil to
// disable the safety interlock (bench use only).
func NewEngine(motors Motors, guard Interlock, cal Calibration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		motors: motors,
		guard:  guard,
		cal:    cal,
		logger: logger.With("component", "drive"),
	}
}

// Velocities returns the most recently commanded wheel pair.
func (e *Engine) Velocities() (left, right float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.left, e.right
}

// Stop cuts both motors immediately, without ramping. Safe to call at any
// time, including from another goroutine during a motion call.
func (e *Engine) Stop() error {
	return e.hardStop()
}

// MoveDistance moves the robot straight for approximately distanceM meters
// (positive forward, negative backward) at the given speed. Duration is pure
// speed-times-time estimation; actual distance varies with surface and
// battery. Forward travel runs under the safety interlock.
func (e *Engine) MoveDistance(ctx context.Context, distanceM, speed float64) (Result, error) {
	info := Info{DistanceM: distanceM, Speed: speed}
	if math.Abs(distanceM) < zeroEpsilon || math.Abs(distanceM) > maxDistanceM {
		return Result{Status: StatusInvalid, Info: info}, nil
	}

	p := linearProfile(e.cal, distanceM, speed)
	info.DurationS = p.total().Seconds()
	e.logger.Info("move distance",
		"distance_m", distanceM, "speed", speed,
		"duration_s", info.DurationS, "guarded", p.guarded)
	return e.run(ctx, p, info)
}

// Rotate turns the robot in place by angleDegrees (positive is clockwise
// viewed from above: left wheel forward, right wheel reverse)
// at the given speed. Rotation applies no safety interlock: the sensor faces
// forward and an in-place turn does not advance toward what it sees.
func (e *Engine) Rotate(ctx context.Context, angleDegrees, speed float64) (Result, error) {
	info := Info{AngleDegrees: angleDegrees, Speed: speed}
	if math.Abs(angleDegrees) < zeroEpsilon || math.Abs(angleDegrees) > maxAngleDegrees {
		return Result{Status: StatusInvalid, Info: info}, nil
	}

	p := rotationProfile(e.cal, angleDegrees, speed)
	info.DurationS = p.total().Seconds()
	e.logger.Info("rotate",
		"angle_degrees", angleDegrees, "speed", speed, "duration_s", info.DurationS)
	return e.run(ctx, p, info)
}

// MoveArc drives along a circular arc of radiusM (positive turns left) for
// angleDegrees of arc (positive forward). Forward travel runs under the
// safety interlock; the calibration offset is applied as in MoveDistance.
func (e *Engine) MoveArc(ctx context.Context, radiusM, angleDegrees, speed float64) (Result, error) {
	info := Info{RadiusM: radiusM, AngleDegrees: angleDegrees, Speed: speed}
	if math.Abs(radiusM) < minRadiusM || math.Abs(radiusM) > maxRadiusM ||
		math.Abs(angleDegrees) < zeroEpsilon || math.Abs(angleDegrees) > maxAngleDegrees {
		return Result{Status: StatusInvalid, Info: info}, nil
	}

	p := arcProfile(e.cal, radiusM, angleDegrees, speed)
	info.DurationS = p.total().Seconds()
	e.logger.Info("move arc",
		"radius_m", radiusM, "angle_degrees", angleDegrees, "speed", speed,
		"duration_s", info.DurationS, "guarded", p.guarded)
	return e.run(ctx, p, info)
}

// run executes a profile through the phase sequence ACCEL → CONST → DECEL.
// A tripped interlock short-circuits to idle with motors forced to zero.
func (e *Engine) run(ctx context.Context, p profile, info Info) (Result, error) {
	if p.guarded && e.guard != nil {
		if st := e.guard.Check(); !st.Safe {
			e.hardStop()
			e.logger.Warn("obstacle before motion start", "distance_m", deref(st.Distance))
			return Result{Status: StatusSafety, FinalDistance: st.Distance, Info: info}, nil
		}
	}

	for _, phase := range []func(context.Context, profile) (*float64, error){
		e.smoothStart, e.hold, e.smoothStop,
	} {
		trip, err := phase(ctx, p)
		if err != nil {
			return Result{}, err
		}
		if trip != nil {
			e.logger.Warn("safety abort", "distance_m", *trip)
			return Result{Status: StatusSafety, FinalDistance: trip, Info: info}, nil
		}
	}

	return Result{Status: StatusCompleted, FinalDistance: e.finalReading(), Info: info}, nil
}

// smoothStart ramps both wheels linearly from rest to the profile target.
// The calibration offset is applied as a constant term at every step, with
// overflow redistributed to the opposite wheel; values below the static
// friction threshold are floored so the wheels actually turn.
func (e *Engine) smoothStart(ctx context.Context, p profile) (*float64, error) {
	steps := e.cal.RampSteps
	if p.accel <= 0 || steps <= 0 {
		if trip, err := e.checkStep(ctx, p); trip != nil || err != nil {
			return trip, err
		}
		e.setVelocities(p.target.left, p.target.right)
		return nil, nil
	}

	stepTime := p.accel / time.Duration(steps)
	baseLeft := p.target.left - p.offset
	baseRight := p.target.right
	leftAbs, leftDir := math.Abs(baseLeft), signOf(baseLeft)
	rightAbs, rightDir := math.Abs(baseRight), signOf(baseRight)

	for i := 0; i < steps; i++ {
		start := time.Now()
		if trip, err := e.checkStep(ctx, p); trip != nil || err != nil {
			return trip, err
		}

		progress := float64(i+1) / float64(steps)
		l := leftAbs * progress * leftDir
		r := rightAbs * progress * rightDir

		if p.offset != 0 {
			var overflow float64
			l, overflow = applyOffset(l, p.offset)
			r = towardZero(r-overflow, rightDir)
		}

		e.setVelocities(frictionFloor(l), frictionFloor(r))
		if trip, err := e.sleepGuarded(ctx, p, stepTime, start); trip != nil || err != nil {
			return trip, err
		}
	}

	e.setVelocities(p.target.left, p.target.right)
	return nil, nil
}

// hold keeps the target velocities through the constant phase, sampling the
// interlock at least every safetySampleInterval.
func (e *Engine) hold(ctx context.Context, p profile) (*float64, error) {
	start := time.Now()
	if trip, err := e.checkStep(ctx, p); trip != nil || err != nil {
		return trip, err
	}
	return e.sleepGuarded(ctx, p, p.constant, start)
}

// smoothStop ramps both wheels linearly down from the profile target to
// rest, snapping tiny values to zero, then issues a final hard stop.
func (e *Engine) smoothStop(ctx context.Context, p profile) (*float64, error) {
	steps := e.cal.RampSteps
	if p.decel <= 0 || steps <= 0 {
		e.hardStop()
		return nil, nil
	}

	stepTime := p.decel / time.Duration(steps)
	leftAbs, leftDir := math.Abs(p.target.left), signOf(p.target.left)
	rightAbs, rightDir := math.Abs(p.target.right), signOf(p.target.right)

	for i := 0; i < steps; i++ {
		start := time.Now()
		if trip, err := e.checkStep(ctx, p); trip != nil || err != nil {
			return trip, err
		}

		progress := 1.0 - float64(i)/float64(steps)
		l := leftAbs * progress * leftDir
		r := rightAbs * progress * rightDir
		if math.Abs(l) < stopJitterFloor {
			l = 0
		}
		if math.Abs(r) < stopJitterFloor {
			r = 0
		}

		e.setVelocities(frictionFloor(l), frictionFloor(r))
		if trip, err := e.sleepGuarded(ctx, p, stepTime, start); trip != nil || err != nil {
			return trip, err
		}
	}

	e.hardStop()
	return nil, nil
}

// sleepGuarded sleeps until start+d, slicing the wait so a safety sample
// lands at least every safetySampleInterval regardless of how long a ramp
// step or hold phase lasts. Time already spent since start (check and motor
// write) counts against the first slice, keeping the phase duration
// accurate under check overhead.
func (e *Engine) sleepGuarded(ctx context.Context, p profile, d time.Duration, start time.Time) (*float64, error) {
	deadline := start.Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if remaining > safetySampleInterval {
			remaining = safetySampleInterval
		}
		time.Sleep(remaining)

		if time.Until(deadline) <= 0 {
			return nil, nil
		}
		if trip, err := e.checkStep(ctx, p); trip != nil || err != nil {
			return trip, err
		}
	}
}

// checkStep runs one interlock sample (guarded profiles only) and the
// context check. A non-nil distance means the interlock tripped and the
// motors are already stopped.
func (e *Engine) checkStep(ctx context.Context, p profile) (*float64, error) {
	select {
	case <-ctx.Done():
		e.hardStop()
		return nil, ctx.Err()
	default:
	}

	if !p.guarded || e.guard == nil {
		return nil, nil
	}
	if st := e.guard.Check(); !st.Safe {
		e.hardStop()
		return st.Distance, nil
	}
	return nil, nil
}

// finalReading samples the sensor once after a completed movement so the
// caller gets an up-to-date obstacle distance alongside the result.
func (e *Engine) finalReading() *float64 {
	if e.guard == nil {
		return nil
	}
	return e.guard.Check().Distance
}

func (e *Engine) setVelocities(left, right float64) {
	if err := e.motors.SetVelocities(left, right); err != nil {
		e.logger.Error("motor write failed", "error", err)
		return
	}
	e.mu.Lock()
	e.left, e.right = left, right
	e.mu.Unlock()
}

func (e *Engine) hardStop() error {
	err := e.motors.Stop()
	if err != nil {
		e.logger.Error("motor stop failed", "error", err)
	}
	e.mu.Lock()
	e.left, e.right = 0, 0
	e.mu.Unlock()
	return err
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// frictionFloor raises a nonzero magnitude to the static friction threshold.
func frictionFloor(v float64) float64 {
	if v == 0 {
		return 0
	}
	if math.Abs(v) < MinMotorValue {
		return MinMotorValue * signOf(v)
	}
	return v
}

// towardZero clamps v to zero if the subtraction crossed the axis for the
// given direction, mirroring the overflow redistribution bound.
func towardZero(v, dir float64) float64 {
	if dir > 0 && v < 0 {
		return 0
	}
	if dir < 0 && v > 0 {
		return 0
	}
	return v
}

func deref(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

package drive

import (
	"math"
	"testing"
	"time"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestApplyOffset(t *testing.T) {
	cases := []struct {
		name                    string
		value, offset           float64
		wantValue, wantOverflow float64
	}{
		{"no overflow", 0.5, 0.0085, 0.5085, 0},
		{"positive overflow", 1.0, 0.0085, 1.0, 0.0085},
		{"partial overflow", 0.995, 0.0085, 1.0, 0.0035},
		{"negative no overflow", -0.5, -0.0085, -0.5085, 0},
		{"negative overflow", -1.0, -0.0085, -1.0, -0.0085},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, overflow := applyOffset(tc.value, tc.offset)
			if !floatEquals(got, tc.wantValue) {
				t.Errorf("adjusted: got %v, want %v", got, tc.wantValue)
			}
			if !floatEquals(overflow, tc.wantOverflow) {
				t.Errorf("overflow: got %v, want %v", overflow, tc.wantOverflow)
			}
		})
	}
}

func TestSplitPhases_SumsToTotal(t *testing.T) {
	total := 4 * time.Second
	accel, constant, decel := splitPhases(total, 0.25)

	if accel != time.Second || decel != time.Second {
		t.Errorf("ramps: got %v/%v, want 1s/1s", accel, decel)
	}
	if accel+constant+decel != total {
		t.Errorf("phase sum %v != total %v", accel+constant+decel, total)
	}
}

func TestSplitPhases_ShortMovement(t *testing.T) {
	// A ratio past 0.5 leaves no room for a constant phase.
	total := time.Second
	accel, constant, decel := splitPhases(total, 0.6)

	if constant != 0 {
		t.Errorf("constant: got %v, want 0", constant)
	}
	if accel+decel != total {
		t.Errorf("ramps %v != total %v", accel+decel, total)
	}
}

func TestLinearProfile_Duration(t *testing.T) {
	cal := DefaultCalibration()

	for _, tc := range []struct {
		distance, speed float64
	}{
		{1.0, 0.5},
		{-2.5, 0.3},
		{10.0, 1.0},
		{0.05, 0.7},
	} {
		p := linearProfile(cal, tc.distance, tc.speed)
		want := math.Abs(tc.distance) / (tc.speed * cal.SpeedFactor)
		got := p.total().Seconds()
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("distance %v speed %v: duration got %v, want %v", tc.distance, tc.speed, got, want)
		}
	}
}

func TestLinearProfile_Direction(t *testing.T) {
	cal := DefaultCalibration()

	fwd := linearProfile(cal, 1.0, 0.5)
	if fwd.target.left <= 0 || fwd.target.right <= 0 {
		t.Errorf("forward targets not positive: %+v", fwd.target)
	}
	if !fwd.guarded {
		t.Error("forward motion must be guarded")
	}

	back := linearProfile(cal, -1.0, 0.5)
	if back.target.left >= 0 || back.target.right >= 0 {
		t.Errorf("backward targets not negative: %+v", back.target)
	}
	if back.guarded {
		t.Error("backward motion must not be guarded")
	}
}

func TestLinearProfile_OffsetPreservesTracking(t *testing.T) {
	cal := DefaultCalibration()

	// At moderate speed the left wheel simply carries the offset.
	p := linearProfile(cal, 1.0, 0.5)
	if !floatEquals(p.target.left, 0.5+cal.LeftMotorOffset) {
		t.Errorf("left: got %v, want %v", p.target.left, 0.5+cal.LeftMotorOffset)
	}
	if !floatEquals(p.target.right, 0.5) {
		t.Errorf("right: got %v, want 0.5", p.target.right)
	}

	// At full speed the offset overflows past 1.0; the overflow is clipped
	// from the left wheel and the right wheel slows by the same amount.
	p = linearProfile(cal, 1.0, 1.0)
	if !floatEquals(p.target.left, 1.0) {
		t.Errorf("left at full speed: got %v, want 1.0", p.target.left)
	}
	if !floatEquals(p.target.right, 1.0-cal.LeftMotorOffset) {
		t.Errorf("right compensation: got %v, want %v", p.target.right, 1.0-cal.LeftMotorOffset)
	}
}

func TestRotationProfile_WheelBounds(t *testing.T) {
	cal := DefaultCalibration()

	for _, angle := range []float64{-720, -180, -45, 10, 90, 360, 720} {
		for _, speed := range []float64{0.3, 0.5, 1.0, 1.5} {
			p := rotationProfile(cal, angle, speed)
			for _, v := range []float64{p.target.left, p.target.right} {
				if m := math.Abs(v); m < MinMotorValue || m > MaxMotorValue {
					t.Errorf("angle %v speed %v: |wheel| %v outside [%v, %v]",
						angle, speed, m, MinMotorValue, MaxMotorValue)
				}
			}
		}
	}
}

func TestRotationProfile_WheelSigns(t *testing.T) {
	cal := DefaultCalibration()

	ccw := rotationProfile(cal, 90, 0.5)
	if ccw.target.left <= 0 || ccw.target.right >= 0 {
		t.Errorf("ccw pair: %+v", ccw.target)
	}

	cw := rotationProfile(cal, -90, 0.5)
	if cw.target.left >= 0 || cw.target.right <= 0 {
		t.Errorf("cw pair: %+v", cw.target)
	}

	if ccw.guarded || cw.guarded {
		t.Error("rotation must not be guarded")
	}
}

func TestRotationProfile_OvershootCorrection(t *testing.T) {
	cal := DefaultCalibration()

	// Twice the angle takes less than twice the time once correction kicks in.
	p90 := rotationProfile(cal, 90, 0.5)
	p180 := rotationProfile(cal, 180, 0.5)
	if p180.total() >= 2*p90.total() {
		t.Errorf("no overshoot correction: 180° %v vs 90° %v", p180.total(), p90.total())
	}

	// The reduction never exceeds the correction cap.
	p720 := rotationProfile(cal, 720, 0.5)
	uncorrected := 8 * float64(p90.total())
	if float64(p720.total()) < uncorrected*(1-overshootMax)-1e3 {
		t.Errorf("720° correction exceeds cap: %v", p720.total())
	}
}

func TestArcProfile_InnerOuter(t *testing.T) {
	cal := DefaultCalibration()

	left := arcProfile(cal, 0.25, 360, 0.5)
	if math.Abs(left.target.left) > math.Abs(left.target.right) {
		t.Errorf("left turn: |left| %v > |right| %v", left.target.left, left.target.right)
	}

	right := arcProfile(cal, -0.25, 360, 0.5)
	if math.Abs(right.target.right) > math.Abs(right.target.left) {
		t.Errorf("right turn: |right| %v > |left| %v", right.target.right, right.target.left)
	}
}

func TestArcProfile_RatioFloor(t *testing.T) {
	cal := DefaultCalibration()

	// A tight radius would stall the inner wheel without the floor.
	for _, speed := range []float64{0.3, 0.5, 1.0} {
		p := arcProfile(cal, 0.03, 90, speed)
		inner := math.Abs(p.target.left) - p.offset
		if ratio := inner / math.Abs(p.target.right); ratio < MinMotorValue/speed-1e-9 {
			t.Errorf("speed %v: inner ratio %v below floor %v", speed, ratio, MinMotorValue/speed)
		}
		if math.Abs(p.target.left) < MinMotorValue {
			t.Errorf("speed %v: inner wheel %v below static friction threshold", speed, p.target.left)
		}
	}
}

func TestArcProfile_RadiusFloor(t *testing.T) {
	cal := DefaultCalibration()

	// Radii below half the track width are floored, not rejected, so the
	// turn center never lands inside the wheelbase.
	tiny := arcProfile(cal, 0.005, 90, 0.5)
	floored := arcProfile(cal, cal.TrackWidthM/2, 90, 0.5)
	if tiny.total() != floored.total() {
		t.Errorf("tiny radius not floored: %v vs %v", tiny.total(), floored.total())
	}
}

func TestArcProfile_BackwardUnguarded(t *testing.T) {
	cal := DefaultCalibration()

	p := arcProfile(cal, 0.25, -90, 0.5)
	if p.guarded {
		t.Error("backward arc must not be guarded")
	}
	if p.target.left >= 0 || p.target.right >= 0 {
		t.Errorf("backward arc targets not negative: %+v", p.target)
	}
	if p.offset != 0 {
		t.Errorf("offset applied to backward arc: %v", p.offset)
	}
}

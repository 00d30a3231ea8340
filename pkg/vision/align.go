// Package vision implements detection-guided behaviors on top of the
// telemetry bridge: rotating until a target object is centered in the
// camera view, and scanning the surroundings by sector.
package vision

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/teslashibe/go-jetbot/pkg/telemetry"
)

// Alignment outcome.
const (
	StatusFound    = "found"
	StatusNotFound = "not_found"
)

// Rotator turns the robot in place by a signed angle. The motion call blocks
// until the turn finishes.
type Rotator interface {
	Rotate(ctx context.Context, angleDegrees, speed float64) error
}

// DetectionSource provides the latest cached detection frame.
type DetectionSource interface {
	Detections() *telemetry.DetectionFrame
}

// LabelSetter switches the active detection label set.
type LabelSetter interface {
	SetLabels(ctx context.Context, labels []string) (bool, error)
}

// RangeReader reads the forward obstacle distance in meters.
type RangeReader interface {
	ReadDistance() (float64, error)
}

// Config tunes the alignment sweep.
type Config struct {
	// IncrementDegrees is the fixed per-step rotation. The sweep is
	// open-loop within each increment; detections are only consulted
	// between steps, after the settle pause.
	IncrementDegrees float64

	// MaxRevolutions bounds the sweep. Two revolutions tolerate one
	// missed detection cycle per bearing.
	MaxRevolutions int

	// SettleTime is the pause after each increment, letting motion blur
	// clear and a fresh detection result land in the cache.
	SettleTime time.Duration

	// Speed is the rotation speed for sweep increments.
	Speed float64

	// CenterThresholdPx is the default horizontal tolerance; callers may
	// override it per request.
	CenterThresholdPx float64

	// ImageWidth is the camera frame width in pixels, fixing the image
	// center the threshold is measured from.
	ImageWidth float64
}

// DefaultConfig matches the stock camera and sweep tuning.
func DefaultConfig() Config {
	return Config{
		IncrementDegrees:  15,
		MaxRevolutions:    2,
		SettleTime:        300 * time.Millisecond,
		Speed:             0.5,
		CenterThresholdPx: 200,
		ImageWidth:        1640,
	}
}

// AlignInfo carries the sweep details alongside the outcome.
type AlignInfo struct {
	Items                []string `json:"items"`
	AngleDegreesFound    float64  `json:"angle_degrees_found"`
	FoundItem            string   `json:"found_item,omitempty"`
	DistanceFromCenterPx *float64 `json:"distance_from_center_px,omitempty"`
}

// AlignResult is the outcome of one alignment sweep.
type AlignResult struct {
	Status          string    `json:"status"`
	FinalUltrasonic *float64  `json:"final_ultrasonic"`
	Info            AlignInfo `json:"info"`
}

// Controller runs detection-guided behaviors. One controller owns the sweep;
// calls must be serialized by the caller like any other motion.
type Controller struct {
	cfg        Config
	rotator    Rotator
	detections DetectionSource
	labels     LabelSetter
	ranger     RangeReader
	logger     *slog.Logger
}

// NewController wires the alignment behaviors. labels and ranger may be nil;
// label propagation and the final distance reading are then skipped.
func NewController(cfg Config, rotator Rotator, detections DetectionSource, labels LabelSetter, ranger RangeReader, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		rotator:    rotator,
		detections: detections,
		labels:     labels,
		ranger:     ranger,
		logger:     logger.With("component", "vision"),
	}
}

// RotateUntilCentered sweeps in fixed increments until a detection matching
// one of targetLabels is horizontally centered within thresholdPx of the
// image center, or the sweep completes without a match. speed <= 0 and
// thresholdPx <= 0 use the configured defaults.
func (c *Controller) RotateUntilCentered(ctx context.Context, targetLabels []string, speed, thresholdPx float64) (AlignResult, error) {
	if speed <= 0 {
		speed = c.cfg.Speed
	}
	if thresholdPx <= 0 {
		thresholdPx = c.cfg.CenterThresholdPx
	}
	info := AlignInfo{Items: targetLabels}

	if c.labels != nil {
		confirmed, err := c.labels.SetLabels(ctx, targetLabels)
		if err != nil {
			return AlignResult{Status: StatusNotFound, Info: info}, err
		}
		if !confirmed {
			c.logger.Warn("label switch unconfirmed, sweeping anyway", "labels", targetLabels)
		}
	}

	maxIncrements := int(float64(c.cfg.MaxRevolutions) * 360 / c.cfg.IncrementDegrees)
	c.logger.Info("alignment sweep started",
		"labels", targetLabels, "speed", speed,
		"threshold_px", thresholdPx, "max_increments", maxIncrements)

	for i := 1; i <= maxIncrements; i++ {
		if err := c.rotator.Rotate(ctx, c.cfg.IncrementDegrees, speed); err != nil {
			return AlignResult{Status: StatusNotFound, Info: info}, err
		}
		if err := c.settle(ctx); err != nil {
			return AlignResult{Status: StatusNotFound, Info: info}, err
		}

		match, offset := c.centeredMatch(targetLabels, thresholdPx)
		if match == "" {
			continue
		}

		info.AngleDegreesFound = float64(i) * c.cfg.IncrementDegrees
		info.FoundItem = match
		info.DistanceFromCenterPx = &offset
		c.logger.Info("target centered",
			"item", match, "angle_degrees", info.AngleDegreesFound, "offset_px", offset)
		return AlignResult{
			Status:          StatusFound,
			FinalUltrasonic: c.finalDistance(),
			Info:            info,
		}, nil
	}

	info.AngleDegreesFound = float64(maxIncrements) * c.cfg.IncrementDegrees
	c.logger.Info("sweep finished without a match", "labels", targetLabels)
	return AlignResult{
		Status:          StatusNotFound,
		FinalUltrasonic: c.finalDistance(),
		Info:            info,
	}, nil
}

// centeredMatch scans the cached detections for a target whose box center is
// within thresholdPx of the image center. Vertical offset is ignored; only
// left/right alignment matters for a forward approach.
func (c *Controller) centeredMatch(targetLabels []string, thresholdPx float64) (string, float64) {
	frame := c.detections.Detections()
	if frame == nil {
		return "", 0
	}

	center := c.cfg.ImageWidth / 2
	for _, d := range frame.Detections {
		if !matchesLabel(d.ClassName, targetLabels) {
			continue
		}
		offset := math.Abs(d.Box.CenterX() - center)
		if offset <= thresholdPx {
			return d.ClassName, offset
		}
	}
	return "", 0
}

func (c *Controller) settle(ctx context.Context) error {
	t := time.NewTimer(c.cfg.SettleTime)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) finalDistance() *float64 {
	if c.ranger == nil {
		return nil
	}
	d, err := c.ranger.ReadDistance()
	if err != nil {
		return nil
	}
	return &d
}

func matchesLabel(class string, targets []string) bool {
	for _, t := range targets {
		if strings.EqualFold(class, t) {
			return true
		}
	}
	return false
}

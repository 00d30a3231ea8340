// Package queue serializes motion commands. The engine below it runs one
// movement synchronously and must never see overlapping calls; every motion
// in the system, single or batched, goes through one Executor.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-jetbot/pkg/drive"
)

// Kind selects the movement variant a Command carries.
type Kind string

const (
	KindMoveDistance Kind = "move_distance"
	KindRotate       Kind = "rotate"
	KindMoveArc      Kind = "move_arc"
)

// Default speeds applied when a command omits one.
const (
	defaultDistanceSpeed = 0.5
	defaultRotateSpeed   = 0.5
	defaultArcSpeed      = 0.4
)

// defaultPause is the fixed settle time between batched commands, letting
// the chassis come fully to rest before the next movement starts.
const defaultPause = 250 * time.Millisecond

// Command is one queued movement. Kind selects the variant; only the fields
// that variant needs are read. Speed zero means the variant default.
type Command struct {
	Kind         Kind    `json:"type"`
	DistanceM    float64 `json:"distance_m,omitempty"`
	AngleDegrees float64 `json:"angle_degrees,omitempty"`
	RadiusM      float64 `json:"radius_m,omitempty"`
	Speed        float64 `json:"robot_speed,omitempty"`
}

// Validate reports a malformed command: unknown kind or missing required
// arguments for the kind.
func (c Command) Validate() error {
	switch c.Kind {
	case KindMoveDistance:
		if c.DistanceM == 0 {
			return fmt.Errorf("%s requires distance_m", c.Kind)
		}
	case KindRotate:
		if c.AngleDegrees == 0 {
			return fmt.Errorf("%s requires angle_degrees", c.Kind)
		}
	case KindMoveArc:
		if c.RadiusM == 0 || c.AngleDegrees == 0 {
			return fmt.Errorf("%s requires radius_m and angle_degrees", c.Kind)
		}
	default:
		return fmt.Errorf("unknown movement type %q", c.Kind)
	}
	return nil
}

// Mover is the motion surface the executor drives; *drive.Engine satisfies
// it.
type Mover interface {
	MoveDistance(ctx context.Context, distanceM, speed float64) (drive.Result, error)
	Rotate(ctx context.Context, angleDegrees, speed float64) (drive.Result, error)
	MoveArc(ctx context.Context, radiusM, angleDegrees, speed float64) (drive.Result, error)
	Stop() error
}

// Executor runs commands strictly one at a time. Stop bypasses the
// serialization so an emergency stop never waits behind a running movement.
type Executor struct {
	mover  Mover
	pause  time.Duration
	logger *slog.Logger

	mu sync.Mutex
}

// NewExecutor creates an executor over the given mover.
func NewExecutor(mover Mover, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		mover:  mover,
		pause:  defaultPause,
		logger: logger.With("component", "queue"),
	}
}

// Execute runs one command, blocking until it finishes.
func (e *Executor) Execute(ctx context.Context, cmd Command) (drive.Result, error) {
	if err := cmd.Validate(); err != nil {
		return drive.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatch(ctx, cmd)
}

// ExecuteAll runs a batch sequentially with the fixed inter-command pause.
// A command ending with any status other than completed stops the batch;
// the results so far are returned. Validation covers the whole batch before
// any wheel moves.
func (e *Executor) ExecuteAll(ctx context.Context, cmds []Command) ([]drive.Result, error) {
	for i, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			return nil, fmt.Errorf("movement %d: %w", i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([]drive.Result, 0, len(cmds))
	for i, cmd := range cmds {
		if i > 0 {
			if err := sleepCtx(ctx, e.pause); err != nil {
				return results, err
			}
		}

		result, err := e.dispatch(ctx, cmd)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if result.Status != drive.StatusCompleted {
			e.logger.Warn("batch stopped early",
				"movement", i, "type", cmd.Kind, "status", result.Status)
			break
		}
	}
	return results, nil
}

// Rotate runs a single serialized rotation. It exists so sweep controllers
// can turn the robot through the same lock as every other movement.
func (e *Executor) Rotate(ctx context.Context, angleDegrees, speed float64) error {
	_, err := e.Execute(ctx, Command{
		Kind:         KindRotate,
		AngleDegrees: angleDegrees,
		Speed:        speed,
	})
	return err
}

// Stop cuts the motors immediately. It deliberately does not take the
// serialization lock: a movement may be mid-ramp and holding it.
func (e *Executor) Stop() error {
	e.logger.Info("emergency stop")
	return e.mover.Stop()
}

func (e *Executor) dispatch(ctx context.Context, cmd Command) (drive.Result, error) {
	switch cmd.Kind {
	case KindMoveDistance:
		return e.mover.MoveDistance(ctx, cmd.DistanceM, speedOr(cmd.Speed, defaultDistanceSpeed))
	case KindRotate:
		return e.mover.Rotate(ctx, cmd.AngleDegrees, speedOr(cmd.Speed, defaultRotateSpeed))
	case KindMoveArc:
		return e.mover.MoveArc(ctx, cmd.RadiusM, cmd.AngleDegrees, speedOr(cmd.Speed, defaultArcSpeed))
	default:
		return drive.Result{}, fmt.Errorf("unknown movement type %q", cmd.Kind)
	}
}

func speedOr(speed, fallback float64) float64 {
	if speed <= 0 {
		return fallback
	}
	return speed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package api

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-jetbot/pkg/drive"
	"github.com/teslashibe/go-jetbot/pkg/queue"
)

// Request bounds, enforced before anything reaches the motors.
const (
	maxDistanceM    = 10.0
	maxAngleDegrees = 720.0
	maxRadiusM      = 5.0
	minRadiusM      = 0.001
	maxQueueLength  = 100
)

// MoveDistanceRequest is the body of POST /move/distance.
type MoveDistanceRequest struct {
	DistanceM  float64 `json:"distance_m"`
	RobotSpeed float64 `json:"robot_speed"`
}

func (r *MoveDistanceRequest) validate() error {
	if math.Abs(r.DistanceM) > maxDistanceM {
		return fmt.Errorf("distance_m must be between -%v and %v meters", maxDistanceM, maxDistanceM)
	}
	if r.RobotSpeed == 0 {
		r.RobotSpeed = 0.5
	}
	return validateSpeed(r.RobotSpeed)
}

// RotateRequest is the body of POST /move/rotate.
type RotateRequest struct {
	AngleDegrees float64 `json:"angle_degrees"`
	RobotSpeed   float64 `json:"robot_speed"`
}

func (r *RotateRequest) validate() error {
	if math.Abs(r.AngleDegrees) > maxAngleDegrees {
		return fmt.Errorf("angle_degrees must be between -%v and %v degrees", maxAngleDegrees, maxAngleDegrees)
	}
	if r.RobotSpeed == 0 {
		r.RobotSpeed = 0.4
	}
	return validateSpeed(r.RobotSpeed)
}

// MoveArcRequest is the body of POST /move/arc.
type MoveArcRequest struct {
	RadiusM      float64 `json:"radius_m"`
	AngleDegrees float64 `json:"angle_degrees"`
	RobotSpeed   float64 `json:"robot_speed"`
}

func (r *MoveArcRequest) validate() error {
	if math.Abs(r.RadiusM) < minRadiusM {
		return fmt.Errorf("radius_m cannot be zero")
	}
	if math.Abs(r.RadiusM) > maxRadiusM {
		return fmt.Errorf("radius_m must be between -%v and %v meters", maxRadiusM, maxRadiusM)
	}
	if math.Abs(r.AngleDegrees) > maxAngleDegrees {
		return fmt.Errorf("angle_degrees must be between -%v and %v degrees", maxAngleDegrees, maxAngleDegrees)
	}
	if r.RobotSpeed == 0 {
		r.RobotSpeed = 0.5
	}
	return validateSpeed(r.RobotSpeed)
}

// QueueRequest is the body of POST /move/queue.
type QueueRequest struct {
	Movements []queue.Command `json:"movements"`
}

func (r *QueueRequest) validate() error {
	if len(r.Movements) == 0 {
		return fmt.Errorf("movements must contain at least one command")
	}
	if len(r.Movements) > maxQueueLength {
		return fmt.Errorf("movements must contain at most %d commands", maxQueueLength)
	}
	for i, cmd := range r.Movements {
		if err := cmd.Validate(); err != nil {
			return fmt.Errorf("movement %d: %w", i, err)
		}
		if math.Abs(cmd.DistanceM) > maxDistanceM {
			return fmt.Errorf("movement %d: distance_m out of range", i)
		}
		if math.Abs(cmd.AngleDegrees) > maxAngleDegrees {
			return fmt.Errorf("movement %d: angle_degrees out of range", i)
		}
		if math.Abs(cmd.RadiusM) > maxRadiusM {
			return fmt.Errorf("movement %d: radius_m out of range", i)
		}
		if cmd.Speed != 0 {
			if err := validateSpeed(cmd.Speed); err != nil {
				return fmt.Errorf("movement %d: %w", i, err)
			}
		}
	}
	return nil
}

// LabelsRequest is the body of POST /vision/labels and /vision/scan.
type LabelsRequest struct {
	Labels []string `json:"labels"`
}

// AlignRequest is the body of POST /vision/rotate_until_object_center.
type AlignRequest struct {
	Items           []string `json:"items"`
	RobotSpeed      float64  `json:"robot_speed"`
	CenterThreshold float64  `json:"center_threshold"`
}

func (r *AlignRequest) validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("items must contain at least one label")
	}
	if r.RobotSpeed != 0 {
		return validateSpeed(r.RobotSpeed)
	}
	return nil
}

func validateSpeed(speed float64) error {
	if speed < drive.MinMotorValue || speed > drive.MaxMotorValue {
		return fmt.Errorf("robot_speed must be between %v and %v",
			drive.MinMotorValue, drive.MaxMotorValue)
	}
	return nil
}

// SuccessResponse is the generic acknowledgment body.
type SuccessResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status           string `json:"status"`
	RobotInitialized bool   `json:"robot_initialized"`
}

// ErrorResponse carries a request failure detail.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

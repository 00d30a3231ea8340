package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-jetbot/pkg/queue"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "healthy"
	if s.motion == nil {
		status = "degraded"
	}
	return c.JSON(HealthResponse{
		Status:           status,
		RobotInitialized: s.motion != nil,
	})
}

func (s *Server) handleMoveDistance(c *fiber.Ctx) error {
	if s.motion == nil {
		return unavailable(c)
	}

	var req MoveDistanceRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return unprocessable(c, err.Error())
	}

	result, err := s.motion.Execute(c.Context(), queue.Command{
		Kind:      queue.KindMoveDistance,
		DistanceM: req.DistanceM,
		Speed:     req.RobotSpeed,
	})
	if err != nil {
		return internal(c, "move_distance", err)
	}
	return c.JSON(result)
}

func (s *Server) handleRotate(c *fiber.Ctx) error {
	if s.motion == nil {
		return unavailable(c)
	}

	var req RotateRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return unprocessable(c, err.Error())
	}

	result, err := s.motion.Execute(c.Context(), queue.Command{
		Kind:         queue.KindRotate,
		AngleDegrees: req.AngleDegrees,
		Speed:        req.RobotSpeed,
	})
	if err != nil {
		return internal(c, "rotate", err)
	}
	return c.JSON(result)
}

func (s *Server) handleMoveArc(c *fiber.Ctx) error {
	if s.motion == nil {
		return unavailable(c)
	}

	var req MoveArcRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return unprocessable(c, err.Error())
	}

	result, err := s.motion.Execute(c.Context(), queue.Command{
		Kind:         queue.KindMoveArc,
		RadiusM:      req.RadiusM,
		AngleDegrees: req.AngleDegrees,
		Speed:        req.RobotSpeed,
	})
	if err != nil {
		return internal(c, "move_arc", err)
	}
	return c.JSON(result)
}

func (s *Server) handleQueue(c *fiber.Ctx) error {
	if s.motion == nil {
		return unavailable(c)
	}

	var req QueueRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return unprocessable(c, err.Error())
	}

	batchID := uuid.NewString()
	s.logger.Info("movement batch accepted", "batch_id", batchID, "movements", len(req.Movements))

	results, err := s.motion.ExecuteAll(c.Context(), req.Movements)
	if err != nil {
		return internal(c, "queue", err)
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Executed %d of %d movements", len(results), len(req.Movements)),
		Data: map[string]any{
			"batch_id":       batchID,
			"movement_count": len(results),
			"results":        results,
		},
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.motion == nil {
		return unavailable(c)
	}
	if err := s.motion.Stop(); err != nil {
		return internal(c, "stop", err)
	}
	return c.JSON(SuccessResponse{Success: true, Message: "Robot stopped"})
}

func (s *Server) handleSetLabels(c *fiber.Ctx) error {
	if s.labeler == nil {
		return unavailable(c)
	}

	var req LabelsRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if len(req.Labels) == 0 {
		return unprocessable(c, "labels must be a non-empty list of strings")
	}

	confirmed, err := s.labeler.SetLabels(c.Context(), req.Labels)
	if err != nil {
		return internal(c, "set_labels", err)
	}

	return c.JSON(SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Sent %d labels to detection backend", len(req.Labels)),
		Data: map[string]any{
			"labels":    req.Labels,
			"confirmed": confirmed,
		},
	})
}

func (s *Server) handleScan(c *fiber.Ctx) error {
	if s.vision == nil {
		return unavailable(c)
	}

	var req LabelsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return unprocessable(c, "invalid request body")
		}
	}

	sectors, err := s.vision.Scan(c.Context(), req.Labels, 45, time.Second)
	if err != nil {
		return internal(c, "scan", err)
	}
	return c.JSON(sectors)
}

func (s *Server) handleAlign(c *fiber.Ctx) error {
	if s.vision == nil {
		return unavailable(c)
	}

	var req AlignRequest
	if err := c.BodyParser(&req); err != nil {
		return unprocessable(c, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return unprocessable(c, err.Error())
	}

	result, err := s.vision.RotateUntilCentered(c.Context(), req.Items, req.RobotSpeed, req.CenterThreshold)
	if err != nil {
		return internal(c, "rotate_until_object_center", err)
	}
	return c.JSON(result)
}

func unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).
		JSON(ErrorResponse{Detail: "Robot controller not initialized"})
}

func unprocessable(c *fiber.Ctx, detail string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Detail: detail})
}

func internal(c *fiber.Ctx, op string, err error) error {
	return c.Status(fiber.StatusInternalServerError).
		JSON(ErrorResponse{Detail: fmt.Sprintf("Failed to execute %s: %v", op, err)})
}

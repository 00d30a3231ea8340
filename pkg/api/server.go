// Package api exposes the robot over HTTP: motion endpoints, vision
// behaviors, an emergency stop and a dashboard telemetry websocket.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jetbot/pkg/drive"
	"github.com/teslashibe/go-jetbot/pkg/hub"
	"github.com/teslashibe/go-jetbot/pkg/queue"
	"github.com/teslashibe/go-jetbot/pkg/telemetry"
	"github.com/teslashibe/go-jetbot/pkg/vision"
)

// snapshotInterval is the dashboard broadcast period (~10 Hz).
const snapshotInterval = 100 * time.Millisecond

// Motion is the serialized movement surface; *queue.Executor satisfies it.
type Motion interface {
	Execute(ctx context.Context, cmd queue.Command) (drive.Result, error)
	ExecuteAll(ctx context.Context, cmds []queue.Command) ([]drive.Result, error)
	Stop() error
}

// Vision runs the detection-guided behaviors; *vision.Controller satisfies
// it.
type Vision interface {
	RotateUntilCentered(ctx context.Context, targetLabels []string, speed, thresholdPx float64) (vision.AlignResult, error)
	Scan(ctx context.Context, labels []string, stepDegrees float64, idle time.Duration) (map[string][]string, error)
}

// Labeler switches the detection server's label set; *telemetry.Bridge
// satisfies it.
type Labeler interface {
	SetLabels(ctx context.Context, labels []string) (bool, error)
}

// DistanceReader reads the forward obstacle distance in meters.
type DistanceReader interface {
	ReadDistance() (float64, error)
}

// MotorReader reports the currently commanded wheel pair.
type MotorReader interface {
	Velocities() (left, right float64)
}

// DetectionSource provides the latest cached detection frame.
type DetectionSource interface {
	Detections() *telemetry.DetectionFrame
}

// Server is the HTTP frontend. Every dependency except motion may be nil;
// the corresponding endpoints then report service unavailable and the
// snapshot omits the fields.
type Server struct {
	app    *fiber.App
	logger *slog.Logger

	motion     Motion
	vision     Vision
	labeler    Labeler
	distance   DistanceReader
	motors     MotorReader
	detections DetectionSource

	hub *hub.Hub
}

// NewServer wires the routes. Run starts listening.
func NewServer(motion Motion, vis Vision, labeler Labeler, distance DistanceReader, motors MotorReader, detections DetectionSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:     logger.With("component", "api"),
		motion:     motion,
		vision:     vis,
		labeler:    labeler,
		distance:   distance,
		motors:     motors,
		detections: detections,
		hub:        hub.New(logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "jetbot",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleHealth)
	app.Get("/health", s.handleHealth)

	app.Post("/move/distance", s.handleMoveDistance)
	app.Post("/move/rotate", s.handleRotate)
	app.Post("/move/arc", s.handleMoveArc)
	app.Post("/move/queue", s.handleQueue)
	app.Post("/stop", s.handleStop)

	app.Post("/vision/labels", s.handleSetLabels)
	app.Post("/vision/scan", s.handleScan)
	app.Post("/vision/rotate_until_object_center", s.handleAlign)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// Run serves until ctx is cancelled, broadcasting telemetry snapshots to
// dashboard clients in the background.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)
	go s.snapshotLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(addr) }()

	select {
	case <-ctx.Done():
		shutdownErr := s.app.ShutdownWithTimeout(5 * time.Second)
		<-errCh
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// telemetrySnapshot is the dashboard broadcast payload.
type telemetrySnapshot struct {
	Type       string                       `json:"type"`
	Ultrasonic *telemetry.UltrasonicReading `json:"ultrasonic,omitempty"`
	Motors     *telemetry.MotorState        `json:"motors,omitempty"`
	Detections []telemetry.Detection        `json:"detections,omitempty"`
	Clients    int                          `json:"clients"`
}

func (s *Server) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			if err := s.hub.BroadcastJSON(s.snapshot()); err != nil {
				s.logger.Warn("snapshot broadcast failed", "error", err)
			}
		}
	}
}

func (s *Server) snapshot() telemetrySnapshot {
	snap := telemetrySnapshot{Type: "telemetry", Clients: s.hub.ClientCount()}
	if s.distance != nil {
		if d, err := s.distance.ReadDistance(); err == nil {
			snap.Ultrasonic = &telemetry.UltrasonicReading{DistanceM: d, DistanceCM: d * 100}
		}
	}
	if s.motors != nil {
		left, right := s.motors.Velocities()
		snap.Motors = &telemetry.MotorState{Left: left, Right: right}
	}
	if s.detections != nil {
		if frame := s.detections.Detections(); frame != nil {
			snap.Detections = frame.Detections
		}
	}
	return snap
}

func (s *Server) handleTelemetryWS(conn *websocket.Conn) {
	client := hub.NewClient(s.hub, conn)
	client.Run()
}

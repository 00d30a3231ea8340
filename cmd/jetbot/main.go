package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-jetbot/internal/config"
	"github.com/teslashibe/go-jetbot/internal/log"
	"github.com/teslashibe/go-jetbot/pkg/api"
	"github.com/teslashibe/go-jetbot/pkg/camera"
	"github.com/teslashibe/go-jetbot/pkg/drive"
	"github.com/teslashibe/go-jetbot/pkg/queue"
	"github.com/teslashibe/go-jetbot/pkg/safety"
	"github.com/teslashibe/go-jetbot/pkg/telemetry"
	"github.com/teslashibe/go-jetbot/pkg/ultrasonic"
	"github.com/teslashibe/go-jetbot/pkg/vision"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to YAML config (defaults used when empty)")
	sim := flag.Bool("sim", false, "Run with simulated motors, rangefinder and camera")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)
	logger := slog.Default()

	fmt.Println("🤖 JetBot Controller")
	fmt.Printf("   Listen:    %s\n", cfg.Server.ListenAddr)
	fmt.Printf("   Inference: %s\n", cfg.Inference.URL)
	fmt.Printf("   Simulated: %v\n", *sim)
	fmt.Println()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		cancel()
	}()

	// Motors.
	var motors drive.Motors
	if *sim {
		motors = drive.NewSimMotors()
	} else {
		hat, err := drive.OpenMotorHAT("", 0)
		if err != nil {
			logger.Error("motor board unavailable", "error", err)
			os.Exit(1)
		}
		defer hat.Close()
		motors = hat
	}

	// Rangefinder. Without one the safety interlock is disabled and the
	// robot drives blind.
	var rangefinder *ultrasonic.Filtered
	switch {
	case *sim:
		rangefinder = ultrasonic.NewFiltered(ultrasonic.NewSimSensor(1.0))
	case cfg.Ultrasonic.SerialPort != "":
		sensor, err := ultrasonic.OpenSerial(cfg.Ultrasonic.SerialPort)
		if err != nil {
			logger.Warn("rangefinder unavailable, safety interlock disabled",
				"port", cfg.Ultrasonic.SerialPort, "error", err)
		} else {
			defer sensor.Close()
			rangefinder = ultrasonic.NewFiltered(sensor)
		}
	}

	var guard drive.Interlock
	if rangefinder != nil {
		guard = safety.NewMonitor(rangefinder, cfg.Safety.ThresholdM, logger)
	}

	engine := drive.NewEngine(motors, guard, cfg.Calibration, logger)
	defer engine.Stop()
	executor := queue.NewExecutor(engine, logger)

	// Camera.
	var frames telemetry.FrameSource
	if *sim {
		static, err := camera.NewStaticSource(cfg.Camera.Width, cfg.Camera.Height)
		if err != nil {
			logger.Error("static frame source", "error", err)
			os.Exit(1)
		}
		frames = static
	} else {
		capture, err := camera.Open(cfg.Camera)
		if err != nil {
			logger.Warn("camera unavailable, telemetry bridge disabled", "error", err)
		} else {
			defer capture.Close()
			frames = capture
		}
	}

	// Detection bridge and the behaviors built on it.
	var bridge *telemetry.Bridge
	if cfg.Inference.URL != "" && frames != nil {
		var dist telemetry.DistanceReader
		if rangefinder != nil {
			dist = rangefinder
		}
		bridge = telemetry.NewBridge(telemetry.Config{URL: cfg.Inference.URL}, frames, dist, engine, logger)
		if err := bridge.Start(ctx); err != nil {
			logger.Error("telemetry bridge", "error", err)
			os.Exit(1)
		}
		defer bridge.Close()
		fmt.Println("📡 Detection bridge enabled")
	}

	var vis api.Vision
	var labeler api.Labeler
	var detections api.DetectionSource
	if bridge != nil {
		var ranger vision.RangeReader
		if rangefinder != nil {
			ranger = rangefinder
		}
		vcfg := vision.DefaultConfig()
		vcfg.ImageWidth = float64(cfg.Camera.Width)
		vis = vision.NewController(vcfg, executor, bridge, bridge, ranger, logger)
		labeler = bridge
		detections = bridge
	}

	var distance api.DistanceReader
	if rangefinder != nil {
		distance = rangefinder
	}

	server := api.NewServer(executor, vis, labeler, distance, engine, detections, logger)
	fmt.Println("✅ Ready")
	if err := server.Run(ctx, cfg.Server.ListenAddr); err != nil {
		logger.Error("server", "error", err)
		os.Exit(1)
	}

	fmt.Println("👋 Goodbye!")
}

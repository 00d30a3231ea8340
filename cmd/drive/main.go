// Command drive runs a single movement and prints the result, for
// calibration passes on a bench or in simulation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-jetbot/internal/log"
	"github.com/teslashibe/go-jetbot/pkg/drive"
	"github.com/teslashibe/go-jetbot/pkg/safety"
	"github.com/teslashibe/go-jetbot/pkg/ultrasonic"
)

func main() {
	distance := flag.Float64("distance", 0, "Distance to drive in meters (negative is backward)")
	angle := flag.Float64("angle", 0, "Angle to rotate in degrees (positive is clockwise)")
	radius := flag.Float64("radius", 0, "Arc radius in meters; combine with -angle")
	speed := flag.Float64("speed", 0.5, "Motor speed fraction")
	port := flag.String("port", "", "Ultrasonic serial port; empty disables the safety interlock")
	sim := flag.Bool("sim", false, "Use simulated motors and print the command history")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	var motors drive.Motors
	var simMotors *drive.SimMotors
	if *sim {
		simMotors = drive.NewSimMotors()
		motors = simMotors
	} else {
		hat, err := drive.OpenMotorHAT("", 0)
		if err != nil {
			logger.Error("motor board unavailable", "error", err)
			os.Exit(1)
		}
		defer hat.Close()
		motors = hat
	}

	var guard drive.Interlock
	if *port != "" {
		sensor, err := ultrasonic.OpenSerial(*port)
		if err != nil {
			logger.Error("rangefinder unavailable", "port", *port, "error", err)
			os.Exit(1)
		}
		defer sensor.Close()
		guard = safety.NewMonitor(ultrasonic.NewFiltered(sensor), 0, logger)
	}

	engine := drive.NewEngine(motors, guard, drive.DefaultCalibration(), logger)
	defer engine.Stop()

	var (
		result drive.Result
		err    error
	)
	switch {
	case *radius != 0:
		result, err = engine.MoveArc(ctx, *radius, *angle, *speed)
	case *angle != 0:
		result, err = engine.Rotate(ctx, *angle, *speed)
	case *distance != 0:
		result, err = engine.MoveDistance(ctx, *distance, *speed)
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -distance, -angle or -radius with -angle")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("movement failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if simMotors != nil {
		for _, pair := range simMotors.History() {
			fmt.Printf("  L=%+.3f R=%+.3f\n", pair.Left, pair.Right)
		}
	}
}

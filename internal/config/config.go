// Package config loads the robot configuration from YAML with environment
// overrides for the values that change between bench and robot.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-jetbot/pkg/camera"
	"github.com/teslashibe/go-jetbot/pkg/drive"
)

// Config is the full robot configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Server      ServerConfig      `yaml:"server"`
	Inference   InferenceConfig   `yaml:"inference"`
	Ultrasonic  UltrasonicConfig  `yaml:"ultrasonic"`
	Safety      SafetyConfig      `yaml:"safety"`
	Camera      camera.Config     `yaml:"camera"`
	Calibration drive.Calibration `yaml:"calibration"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// InferenceConfig is the detection-server link configuration.
type InferenceConfig struct {
	// URL of the detection server websocket; empty disables the bridge.
	URL string `yaml:"url"`
}

// UltrasonicConfig is the rangefinder configuration.
type UltrasonicConfig struct {
	// SerialPort is the rangefinder device path; empty disables the
	// sensor and with it the safety interlock.
	SerialPort string `yaml:"serial_port"`
}

// SafetyConfig tunes the collision interlock.
type SafetyConfig struct {
	ThresholdM float64 `yaml:"threshold_m"`
}

// Default returns the configuration for a stock robot.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr: ":8000",
		},
		Inference: InferenceConfig{
			URL: "ws://localhost:8765/ws",
		},
		Ultrasonic: UltrasonicConfig{
			SerialPort: "/dev/ttyTHS1",
		},
		Safety: SafetyConfig{
			ThresholdM: 0.05,
		},
		Camera:      camera.DefaultConfig(),
		Calibration: drive.DefaultCalibration(),
	}
}

// Load reads the config file at path, falling back to defaults for an empty
// path, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides the deployment-specific values from the environment.
func (c *Config) applyEnv() {
	if addr := os.Getenv("JETBOT_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}
	if url := os.Getenv("JETBOT_INFERENCE_URL"); url != "" {
		c.Inference.URL = url
	}
	if port := os.Getenv("JETBOT_ULTRASONIC_PORT"); port != "" {
		c.Ultrasonic.SerialPort = port
	}
	if level := os.Getenv("JETBOT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Safety.ThresholdM < 0 {
		return fmt.Errorf("safety.threshold_m must not be negative")
	}
	if c.Calibration.SpeedFactor <= 0 {
		return fmt.Errorf("calibration.speed_factor must be positive")
	}
	if c.Calibration.RampRatio <= 0 || c.Calibration.RampRatio > 0.5 {
		return fmt.Errorf("calibration.ramp_ratio must be in (0, 0.5]")
	}
	if c.Calibration.RampSteps <= 0 {
		return fmt.Errorf("calibration.ramp_steps must be positive")
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: %v", errs)
	}
	return nil
}

// Package camera produces JPEG frames from the onboard CSI camera for the
// telemetry stream and the vision pipeline.
package camera

import "fmt"

// Config is the capture configuration. The defaults match the wide-angle
// CSI camera module the robot ships with.
type Config struct {
	// Device is the V4L2 device index.
	Device int `yaml:"device" json:"device"`

	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	Framerate int `yaml:"framerate" json:"framerate"`

	// Quality is the JPEG encode quality, 1-100.
	Quality int `yaml:"quality" json:"quality"`
}

// DefaultConfig returns the native capture mode of the stock camera.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     1640,
		Height:    1232,
		Framerate: 30,
		Quality:   85,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() []string {
	var errs []string
	if c.Device < 0 {
		errs = append(errs, fmt.Sprintf("device must be >= 0, got %d", c.Device))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Sprintf("invalid resolution %dx%d", c.Width, c.Height))
	}
	if c.Framerate <= 0 || c.Framerate > 120 {
		errs = append(errs, fmt.Sprintf("framerate must be in 1-120, got %d", c.Framerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Sprintf("quality must be in 1-100, got %d", c.Quality))
	}
	return errs
}

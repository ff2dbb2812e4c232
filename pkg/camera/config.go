// Package camera opens the local webcam for the gesture channel and holds its
// runtime-adjustable settings.
package camera

import "fmt"

// Config holds webcam settings. They can be changed at runtime through the
// dashboard.
type Config struct {
	// Device is the capture index passed to OpenCV.
	Device int `json:"device" yaml:"device"`

	// Resolution and rate requested from the driver. Drivers may round.
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
	Framerate int `json:"framerate" yaml:"framerate"`

	// Mirror flips frames horizontally so the cursor follows the hand the
	// way a mirror would.
	Mirror bool `json:"mirror" yaml:"mirror"`
}

// Frame size limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns 640x480 at 30fps, mirrored. Hand landmarks need far
// less than HD and the lower size keeps inference cheap.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Mirror:    true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must not be negative")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}

	return errors
}

// sameStream reports whether o can be served without reopening the device.
func (c Config) sameStream(o Config) bool {
	return c.Device == o.Device && c.Width == o.Width && c.Height == o.Height && c.Framerate == o.Framerate
}

package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-nova/pkg/fault"
)

// ErrClosed is returned when reading from a closed capture.
var ErrClosed = errors.New("camera: capture closed")

// Capture reads frames from a local webcam.
type Capture struct {
	mu     sync.Mutex
	cfg    Config
	vc     *gocv.VideoCapture
	logger *slog.Logger
}

// Open opens the device named by cfg.
func Open(cfg Config, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Capture{cfg: cfg, logger: logger.With("component", "camera.capture")}
	vc, err := c.open(cfg)
	if err != nil {
		return nil, err
	}
	c.vc = vc
	return c, nil
}

func (c *Capture) open(cfg Config) (*gocv.VideoCapture, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fault.New(fault.DeviceUnavailable, "camera.open", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fault.New(fault.DeviceUnavailable, "camera.open", fmt.Errorf("device %d did not open", cfg.Device))
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	c.logger.Info("camera opened",
		"device", cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)
	return vc, nil
}

// Read grabs the next frame into dst, mirrored when configured.
func (c *Capture) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return ErrClosed
	}
	if !c.vc.Read(dst) || dst.Empty() {
		return fault.New(fault.DeviceUnavailable, "camera.read", errors.New("no frame"))
	}
	if c.cfg.Mirror {
		gocv.Flip(*dst, dst, 1)
	}
	return nil
}

// Apply switches to cfg, reopening the device only when the stream changes.
func (c *Capture) Apply(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc != nil && c.cfg.sameStream(cfg) {
		c.cfg = cfg
		return nil
	}

	vc, err := c.open(cfg)
	if err != nil {
		return err
	}
	if c.vc != nil {
		c.vc.Close()
	}
	c.vc = vc
	c.cfg = cfg
	return nil
}

// Config returns the active configuration.
func (c *Capture) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}

// Package handpose runs a hand-landmark ONNX model over webcam frames.
package handpose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/gesture"
)

// Config holds detector configuration.
type Config struct {
	// ModelPath is a MediaPipe-style hand landmark model exported to ONNX.
	// It takes one NCHW RGB image scaled to [0,1] and emits 21 (x, y, z)
	// points in input pixels plus a hand presence score.
	ModelPath string `yaml:"model_path"`

	// InputSize is the square model input in pixels.
	InputSize int `yaml:"input_size"`

	// MinPresence is the score below which no hand is reported.
	MinPresence float64 `yaml:"min_presence"`

	// Output layer names.
	LandmarkOutput string `yaml:"landmark_output"`
	PresenceOutput string `yaml:"presence_output"`
}

// DefaultConfig returns defaults for the 224px hand landmark model.
func DefaultConfig() Config {
	return Config{
		ModelPath:      "models/hand_landmark.onnx",
		InputSize:      224,
		MinPresence:    0.5,
		LandmarkOutput: "Identity",
		PresenceOutput: "Identity_1",
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.ModelPath == "" {
		errs = append(errs, errors.New("handpose: model_path is required"))
	}
	if c.InputSize <= 0 {
		errs = append(errs, errors.New("handpose: input_size must be positive"))
	}
	if c.MinPresence < 0 || c.MinPresence > 1 {
		errs = append(errs, errors.New("handpose: min_presence must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// Detector finds one hand per frame.
type Detector struct {
	net  gocv.Net
	cfg  Config
	size image.Point
	mu   sync.Mutex // Protects inference
}

// New loads the model.
func New(cfg Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load hand model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		net:  net,
		cfg:  cfg,
		size: image.Pt(cfg.InputSize, cfg.InputSize),
	}, nil
}

// Detect returns the hand in img, or nil when none is present.
func (d *Detector) Detect(img gocv.Mat) (*gesture.Landmarks, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	d.net.SetInput(blob, "")

	outs := d.net.ForwardLayers([]string{d.cfg.LandmarkOutput, d.cfg.PresenceOutput})
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) != 2 {
		return nil, fmt.Errorf("expected 2 outputs, got %d", len(outs))
	}

	points, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}
	presence, err := outs[1].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	if len(presence) == 0 {
		return nil, errors.New("empty presence output")
	}

	return parseOutput(points, presence[0], d.cfg)
}

// parseOutput converts raw model output into frame-normalised landmarks.
func parseOutput(points []float32, presence float32, cfg Config) (*gesture.Landmarks, error) {
	if float64(presence) < cfg.MinPresence {
		return nil, nil
	}
	if len(points) < gesture.NumLandmarks*3 {
		return nil, fmt.Errorf("expected %d landmark values, got %d", gesture.NumLandmarks*3, len(points))
	}

	scale := float64(cfg.InputSize)
	var l gesture.Landmarks
	for i := range l {
		l[i] = gesture.Point{
			X: float64(points[i*3]) / scale,
			Y: float64(points[i*3+1]) / scale,
		}
	}
	return &l, nil
}

// Close releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Source reads webcam frames and detects hands in them.
type Source struct {
	cam   *camera.Capture
	det   *Detector
	frame gocv.Mat
}

// NewSource pairs a camera with a detector.
func NewSource(cam *camera.Capture, det *Detector) *Source {
	return &Source{cam: cam, det: det, frame: gocv.NewMat()}
}

// Next implements gesture.Source.
func (s *Source) Next(ctx context.Context) (*gesture.Landmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.cam.Read(&s.frame); err != nil {
		return nil, err
	}
	return s.det.Detect(s.frame)
}

// Close releases the frame buffer, the model and the camera.
func (s *Source) Close() error {
	s.frame.Close()
	return errors.Join(s.det.Close(), s.cam.Close())
}

var _ gesture.Source = (*Source)(nil)

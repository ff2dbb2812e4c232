// Package config loads the Nova configuration file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-nova/pkg/audioio"
	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/chat"
	"github.com/teslashibe/go-nova/pkg/gesture"
	"github.com/teslashibe/go-nova/pkg/gesture/handpose"
	"github.com/teslashibe/go-nova/pkg/voice"
	"github.com/teslashibe/go-nova/pkg/wake"
	"github.com/teslashibe/go-nova/pkg/web"
)

// Default backend settings.
const (
	DefaultBackendURL = "http://127.0.0.1:8000"
	DefaultRuntime    = "native"
)

// Environment variables read by ApplyEnv.
const (
	EnvBackendURL    = "NOVA_BACKEND_URL"
	EnvRuntime       = "NOVA_RUNTIME"
	EnvRecognizerURL = "NOVA_RECOGNIZER_URL"
	EnvVerbose       = "NOVA_VERBOSE"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvLogLevel      = "NOVA_LOG_LEVEL"
)

// Config is the complete Nova configuration.
type Config struct {
	// BackendURL is the root of the Nova backend (/chat, /chat/stream, /stt,
	// /speak, /health).
	BackendURL string `yaml:"backend_url"`

	// Runtime names the host. "host-shell" forces chunked wake detection.
	Runtime string `yaml:"runtime"`

	LogLevel string `yaml:"log_level"`

	Audio   audioio.Config `yaml:"audio"`
	STT     STTConfig      `yaml:"stt"`
	Wake    wake.Config    `yaml:"wake"`
	Voice   voice.Config   `yaml:"voice"`
	Chat    chat.Config    `yaml:"chat"`
	TTS     TTSConfig      `yaml:"tts"`
	Gesture GestureConfig  `yaml:"gesture"`
	Camera  camera.Config  `yaml:"camera"`
	Web     web.Config     `yaml:"web"`
}

// STTConfig configures transcription and the continuous recognizer.
type STTConfig struct {
	// RecognizerURL is a Vosk-protocol websocket. Empty selects chunked
	// wake detection.
	RecognizerURL string `yaml:"recognizer_url"`

	Timeout time.Duration `yaml:"timeout"`
}

// TTSConfig configures speech synthesis fallbacks.
type TTSConfig struct {
	// OpenAIKey enables the OpenAI provider behind the backend. It is only
	// read from the environment.
	OpenAIKey string `yaml:"-"`

	OpenAIVoice string        `yaml:"openai_voice"`
	Timeout     time.Duration `yaml:"timeout"`
}

// GestureConfig configures the pinch cursor.
type GestureConfig struct {
	Enabled bool `yaml:"enabled"`

	gesture.Config `yaml:",inline"`

	Handpose handpose.Config `yaml:"handpose"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BackendURL: DefaultBackendURL,
		Runtime:    DefaultRuntime,
		LogLevel:   "info",
		Audio:      audioio.DefaultConfig(),
		STT:        STTConfig{Timeout: 20 * time.Second},
		Wake:       wake.DefaultConfig(),
		Voice:      voice.DefaultConfig(),
		Chat:       chat.DefaultConfig(),
		TTS:        TTSConfig{OpenAIVoice: "nova", Timeout: 30 * time.Second},
		Gesture: GestureConfig{
			Enabled:  true,
			Config:   gesture.DefaultConfig(),
			Handpose: handpose.DefaultConfig(),
		},
		Camera: camera.DefaultConfig(),
		Web:    web.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads YAML from r over the defaults. Unknown keys are
// rejected.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		c.BackendURL = v
	}
	if v, ok := lookup(EnvRuntime); ok && v != "" {
		c.Runtime = v
	}
	if v, ok := lookup(EnvRecognizerURL); ok {
		c.STT.RecognizerURL = v
	}
	if v, ok := lookup(EnvOpenAIKey); ok {
		c.TTS.OpenAIKey = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvVerbose); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: EnvVerbose, Message: fmt.Sprintf("not a boolean: %q", v)}
		}
		c.Chat.Verbose = b
	}
	return nil
}

// Validate returns every configuration problem joined together.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &Error{Field: "backend_url", Message: fmt.Sprintf("invalid URL %q", c.BackendURL)})
	}
	if c.Runtime == "" {
		errs = append(errs, &Error{Field: "runtime", Message: "must not be empty"})
	}
	if c.STT.Timeout <= 0 {
		errs = append(errs, &Error{Field: "stt.timeout", Message: "must be positive"})
	}
	if c.TTS.Timeout <= 0 {
		errs = append(errs, &Error{Field: "tts.timeout", Message: "must be positive"})
	}
	if err := c.Audio.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	errs = append(errs, c.Wake.Validate(), c.Voice.Validate(), c.Web.Validate())
	if c.Gesture.Enabled {
		errs = append(errs, c.Gesture.Config.Validate(), c.Gesture.Handpose.Validate())
		for _, msg := range c.Camera.Validate() {
			errs = append(errs, &Error{Field: "camera", Message: msg})
		}
	}
	return errors.Join(errs...)
}

// Error is one invalid setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Package nova assembles the voice assistant: microphone, wake detection,
// capture, chat streaming, playback, gesture cursor and dashboard.
package nova

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-nova/internal/config"
	"github.com/teslashibe/go-nova/internal/observe"
	"github.com/teslashibe/go-nova/pkg/audio"
	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/chat"
	"github.com/teslashibe/go-nova/pkg/gesture"
	"github.com/teslashibe/go-nova/pkg/gesture/handpose"
	"github.com/teslashibe/go-nova/pkg/mic"
	"github.com/teslashibe/go-nova/pkg/stt"
	"github.com/teslashibe/go-nova/pkg/tts"
	"github.com/teslashibe/go-nova/pkg/voice"
	"github.com/teslashibe/go-nova/pkg/wake"
	"github.com/teslashibe/go-nova/pkg/web"
)

const healthTimeout = 5 * time.Second

// App owns every component and their lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	metrics *observe.Provider

	// Voice pipeline
	mic        *mic.Manager
	transcribe stt.Provider
	speech     tts.Provider
	player     *audio.Player
	chat       *chat.Client
	consumer   *chat.Consumer
	detector   wake.Detector
	controller *voice.Controller

	// Gesture cursor, nil when disabled or unavailable
	cameraManager *camera.Manager
	gestureSource *handpose.Source
	gesture       *gesture.Runner

	web *web.Server
}

// New validates cfg and returns an uninitialised App.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		logger: logger.With("component", "nova.app"),
	}, nil
}

// Init builds every component. Call it once before Run.
func (a *App) Init(ctx context.Context) error {
	a.initMetrics(ctx)

	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}
	if err := a.initChat(ctx); err != nil {
		return fmt.Errorf("chat init: %w", err)
	}
	if err := a.initVoice(ctx); err != nil {
		return fmt.Errorf("voice init: %w", err)
	}
	if a.config.Gesture.Enabled {
		if err := a.initGesture(); err != nil {
			a.logger.Warn("gesture cursor disabled", "error", err)
		}
	}
	a.initWeb()
	return nil
}

func (a *App) initMetrics(ctx context.Context) {
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "go-nova"})
	if err != nil {
		a.logger.Warn("metrics disabled", "error", err)
		return
	}
	a.metrics = p
}

func (a *App) instruments() *observe.Metrics {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Metrics
}

// initSpeech sets up transcription, synthesis and playback.
func (a *App) initSpeech() error {
	cfg := a.config

	transcribe, err := stt.NewBackend(
		stt.WithBaseURL(cfg.BackendURL),
		stt.WithSampleRate(cfg.Audio.SampleRate),
		stt.WithTimeout(cfg.STT.Timeout),
		stt.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.transcribe = transcribe

	backend, err := tts.NewBackend(
		tts.WithBaseURL(cfg.BackendURL),
		tts.WithVoice(cfg.Chat.Voice),
		tts.WithTimeout(cfg.TTS.Timeout),
		tts.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	providers := []tts.Provider{backend}
	if cfg.TTS.OpenAIKey != "" {
		openai, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.TTS.OpenAIKey),
			tts.WithVoice(cfg.TTS.OpenAIVoice),
			tts.WithTimeout(cfg.TTS.Timeout),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
		providers = append(providers, openai)
	}
	chain, err := tts.NewChainWithLogger(a.logger, providers...)
	if err != nil {
		return err
	}
	a.speech = chain

	a.player = audio.NewPlayer(
		audio.WithBaseURL(cfg.BackendURL),
		audio.WithLogger(a.logger),
	)
	return nil
}

func (a *App) initChat(ctx context.Context) error {
	client, err := chat.NewClient(a.config.BackendURL, chat.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.chat = client

	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := client.Health(hctx); err != nil {
		a.logger.Warn("backend not ready", "url", client.BaseURL(), "error", err)
	} else {
		a.logger.Info("backend ready", "url", client.BaseURL())
	}

	consumer, err := chat.NewConsumer(a.config.Chat, chat.Deps{
		Client:  client,
		Player:  a.player,
		TTS:     a.speech,
		Metrics: a.instruments(),
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.consumer = consumer
	return nil
}

// initVoice wires the microphone, wake detector and controller. The
// detector's callbacks reach the controller through a, which is set before
// the detector can start.
func (a *App) initVoice(ctx context.Context) error {
	cfg := a.config
	a.mic = mic.NewManager(mic.SourceOpener(cfg.Audio, a.logger), a.logger)

	detector, err := wake.Select(ctx, wake.Env{
		Runtime:       cfg.Runtime,
		RecognizerURL: cfg.STT.RecognizerURL,
		SampleRate:    cfg.Audio.SampleRate,
	}, wake.Deps{
		Config:  cfg.Wake,
		Mic:     a.mic,
		STT:     a.transcribe,
		OnWake:  func() { a.controller.Wake() },
		OnError: func(err error) { a.controller.DetectorFailed(err) },
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.detector = detector

	ctrl, err := voice.NewController(voice.Deps{
		Config:   cfg.Voice,
		Mic:      a.mic,
		Detector: detector,
		Capture:  voice.NewCapture(cfg.Voice, a.mic, a.transcribe, a.instruments(), a.logger),
		Chat:     a.consumer,
		Metrics:  a.instruments(),
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.controller = ctrl

	ctrl.OnPhase = func(from, to voice.Phase) {
		a.logger.Debug("phase", "from", from, "to", to)
	}
	a.player.OnPlaybackStart = ctrl.PlaybackStarted
	return nil
}

// initGesture opens the webcam and hand model. Failure leaves the cursor off.
func (a *App) initGesture() error {
	cam, err := camera.Open(a.config.Camera, a.logger)
	if err != nil {
		return err
	}
	det, err := handpose.New(a.config.Gesture.Handpose)
	if err != nil {
		cam.Close()
		return err
	}

	a.cameraManager = camera.NewManager(a.config.Camera)
	a.cameraManager.OnConfigChange = cam.Apply
	a.gestureSource = handpose.NewSource(cam, det)
	a.gesture = gesture.NewRunner(a.config.Gesture.Config, a.gestureSource, a.instruments(), a.logger)
	return nil
}

func (a *App) initWeb() {
	deps := web.Deps{
		Voice:  a.controller,
		Camera: a.cameraManager,
		Logger: a.logger,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics.Handler
	}
	a.web = web.NewServer(a.config.Web, deps)
	a.web.OnSpeak = a.speak

	a.controller.OnNotice = a.web.AddNotice
	a.consumer.OnUpdate = a.web.PublishReply
	a.consumer.OnConversation = a.web.PublishConversation
	if a.gesture != nil {
		a.gesture.OnSample = a.web.PublishCursor
	}
}

// speak reads text aloud outside any chat exchange.
func (a *App) speak(ctx context.Context, text string) error {
	res, err := a.speech.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return a.player.PlayAudio(ctx, res.Audio)
}

// Run runs every component until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.controller.Run(ctx) })
	g.Go(func() error { return a.web.Run(ctx) })
	if a.gesture != nil {
		g.Go(func() error { return a.gesture.Run(ctx) })
	}

	if !a.config.Voice.StartMuted {
		if err := a.controller.Unmute(ctx); err != nil {
			a.logger.Warn("microphone unavailable, starting muted", "error", err)
		}
	}

	a.logger.Info("nova running",
		"backend", a.config.BackendURL,
		"wake", a.detector.Strategy(),
		"gesture", a.gesture != nil,
		"dashboard", a.config.Web.Addr,
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases devices and flushes metrics.
func (a *App) Shutdown() {
	if a.gestureSource != nil {
		if err := a.gestureSource.Close(); err != nil {
			a.logger.Warn("close gesture source", "error", err)
		}
	}
	if a.speech != nil {
		a.speech.Close()
	}
	if a.player != nil {
		a.player.Cancel()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown", "error", err)
		}
	}
}

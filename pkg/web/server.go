// Package web serves the Nova dashboard: a small REST API for control and
// websocket feeds for status, replies, notices and the gesture cursor.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/chat"
	"github.com/teslashibe/go-nova/pkg/gesture"
	"github.com/teslashibe/go-nova/pkg/hub"
	"github.com/teslashibe/go-nova/pkg/voice"
)

// Voice is the part of the voice controller the dashboard drives.
type Voice interface {
	Status() voice.Status
	Mute()
	Unmute(ctx context.Context) error
	SubmitText(text string) error
	StopResponse()
}

// Config holds dashboard settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// StaticDir, when set, is served at /.
	StaticDir string `yaml:"static_dir"`

	// StatusInterval is how often status changes are pushed.
	StatusInterval time.Duration `yaml:"status_interval"`
}

// DefaultConfig returns the standard dashboard settings.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 250 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("web: addr is required"))
	}
	if c.StatusInterval <= 0 {
		errs = append(errs, errors.New("web: status_interval must be positive"))
	}
	return errors.Join(errs...)
}

// Deps are the dashboard's collaborators. Camera and Metrics are optional.
type Deps struct {
	Voice   Voice
	Camera  *camera.Manager
	Metrics http.Handler
	Logger  *slog.Logger
}

// NoticeEntry is one user-visible notice.
type NoticeEntry struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

const maxNotices = 100

// Server is the web dashboard server.
type Server struct {
	app    *fiber.App
	cfg    Config
	voice  Voice
	camera *camera.Manager
	logger *slog.Logger

	notices   []NoticeEntry
	noticesMu sync.RWMutex

	statusHub *hub.Hub
	replyHub  *hub.Hub
	noticeHub *hub.Hub
	cursorHub *hub.Hub

	// OnSpeak synthesizes and plays text. /api/speak returns 501 without it.
	OnSpeak func(ctx context.Context, text string) error
}

// NewServer creates the dashboard.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		voice:     deps.Voice,
		camera:    deps.Camera,
		logger:    logger.With("component", "web.server"),
		notices:   make([]NoticeEntry, 0, maxNotices),
		statusHub: hub.New("status", logger),
		replyHub:  hub.New("reply", logger),
		noticeHub: hub.New("notices", logger),
		cursorHub: hub.New("cursor", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Nova Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/mute", s.handleMute)
	api.Post("/unmute", s.handleUnmute)
	api.Post("/send", s.handleSend)
	api.Post("/stop", s.handleStop)
	api.Post("/speak", s.handleSpeak)
	api.Get("/notices", s.handleNotices)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/reply", websocket.New(s.serveHub(s.replyHub)))
	app.Get("/ws/notices", websocket.New(s.serveHub(s.noticeHub)))
	app.Get("/ws/cursor", websocket.New(s.serveHub(s.cursorHub)))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}

// Run starts the hubs, the status pusher and the listener. It returns when
// ctx ends or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	for _, h := range []*hub.Hub{s.statusHub, s.replyHub, s.noticeHub, s.cursorHub} {
		go h.Run(ctx)
	}
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// pushStatus publishes the voice status whenever it changes.
func (s *Server) pushStatus(ctx context.Context) {
	if s.voice == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	var last voice.Status
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st := s.voice.Status()
		if !first && reflect.DeepEqual(st, last) {
			continue
		}
		first = false
		last = st
		s.statusHub.Publish("status", st)
	}
}

// PublishReply pushes a chat reply update.
func (s *Server) PublishReply(r chat.Reply) {
	if err := s.replyHub.Publish("reply", r); err != nil {
		s.logger.Warn("encode reply", "error", err)
	}
}

// PublishConversation announces a new conversation id.
func (s *Server) PublishConversation(id string) {
	s.replyHub.Publish("conversation", fiber.Map{"conversation_id": id})
}

// cursorEvent is one gesture frame on the wire.
type cursorEvent struct {
	gesture.CursorSample
	gesture.PinchState
}

// PublishCursor pushes one gesture frame.
func (s *Server) PublishCursor(c gesture.CursorSample, p gesture.PinchState) {
	s.cursorHub.Publish("cursor", cursorEvent{c, p})
}

// AddNotice records a notice and pushes it to clients.
func (s *Server) AddNotice(message string) {
	entry := NoticeEntry{
		Time:    time.Now().Format("15:04:05"),
		Message: message,
	}

	s.noticesMu.Lock()
	s.notices = append(s.notices, entry)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[1:]
	}
	s.noticesMu.Unlock()

	s.noticeHub.Publish("notice", entry)
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

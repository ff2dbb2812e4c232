package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-nova/pkg/camera"
	"github.com/teslashibe/go-nova/pkg/fault"
	"github.com/teslashibe/go-nova/pkg/voice"
)

// TextRequest is the body of /api/send and /api/speak.
type TextRequest struct {
	Text string `json:"text"`
}

func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// handleStatus returns the voice controller snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.voice.Status())
}

func (s *Server) handleMute(c *fiber.Ctx) error {
	s.voice.Mute()
	return c.JSON(s.voice.Status())
}

func (s *Server) handleUnmute(c *fiber.Ctx) error {
	if err := s.voice.Unmute(c.UserContext()); err != nil {
		status := fiber.StatusServiceUnavailable
		if fault.Is(err, fault.PermissionDenied) {
			status = fiber.StatusForbidden
		}
		return c.Status(status).JSON(fiber.Map{
			"error":  err.Error(),
			"notice": fault.Notice(err),
		})
	}
	return c.JSON(s.voice.Status())
}

func (s *Server) readText(c *fiber.Ctx) (string, error) {
	var req TextRequest
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", voice.ErrNoText
	}
	return text, nil
}

// handleSend submits typed text as a command
func (s *Server) handleSend(c *fiber.Ctx) error {
	text, err := s.readText(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	switch err := s.voice.SubmitText(text); {
	case errors.Is(err, voice.ErrBusy):
		return errorJSON(c, fiber.StatusConflict, err)
	case err != nil:
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.voice.StopResponse()
	return c.JSON(fiber.Map{"stopped": true})
}

// handleSpeak reads text aloud without a chat exchange
func (s *Server) handleSpeak(c *fiber.Ctx) error {
	if s.OnSpeak == nil {
		return errorJSON(c, fiber.StatusNotImplemented, errors.New("speech not configured"))
	}
	text, err := s.readText(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.OnSpeak(c.UserContext(), text); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  err.Error(),
			"notice": fault.Notice(err),
		})
	}
	return c.JSON(fiber.Map{"spoken": true})
}

func (s *Server) handleNotices(c *fiber.Ctx) error {
	s.noticesMu.RLock()
	defer s.noticesMu.RUnlock()
	return c.JSON(s.notices)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.camera.GetConfig())
}

func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return fiber.ErrNotFound
	}
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(s.camera.GetConfig())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"presets": camera.PresetNames()})
}

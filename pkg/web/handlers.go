package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleLoadModel(c *fiber.Ctx) error {
	if err := s.ctrl.LoadModel(c.UserContext()); err != nil {
		return controlError(err)
	}
	s.BroadcastStatus()
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.ctrl.Start(c.UserContext()); err != nil {
		s.BroadcastStatus()
		return controlError(err)
	}
	s.BroadcastStatus()
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		s.logger.Warn("stop", "error", err)
	}
	s.BroadcastStatus()
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleGuidance(c *fiber.Ctx) error {
	g := s.ctrl.Snapshot().Guidance
	if g == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(g)
}

func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.frames == nil {
		return fiber.NewError(fiber.StatusNotFound, "no frame source")
	}
	data, err := s.frames.LatestJPEG()
	if errors.Is(err, capture.ErrNoFrame) {
		return fiber.NewError(fiber.StatusNotFound, "no frame yet")
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// controlError maps lifecycle errors to HTTP statuses.
func controlError(err error) error {
	var cse *pipeline.CaptureSourceError
	var mle *pipeline.ModelLoadError
	switch {
	case errors.Is(err, pipeline.ErrInvalidTransition), errors.Is(err, pipeline.ErrNotReady):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrClosed), errors.As(err, &cse):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.As(err, &mle):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		return err
	}
}

package detectserver

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/detection/remote"
	"github.com/teslashibe/go-wayfind/pkg/detection/wsdetect"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(remote.HealthResponse{
		Status:  "ok",
		Backend: detection.NameOf(s.detector),
	})
}

func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.limiter.allow(c.IP(), time.Now()) {
		return c.Next()
	}
	return failure(c, fiber.StatusTooManyRequests, ErrRateLimited.Error())
}

func (s *Server) handleDetect(c *fiber.Ctx) error {
	var req remote.DetectRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return failure(c, fiber.StatusBadRequest, err.Error())
	}

	img, err := detection.DecodeDataURL(req.Image)
	if err != nil {
		return failure(c, fiber.StatusBadRequest, err.Error())
	}

	start := time.Now()
	dets, instrs, err := s.Detect(c.UserContext(), img)
	if err != nil {
		s.logger.Error("detect failed", "error", err, "request_id", c.Locals("requestid"))
		return failure(c, fiber.StatusInternalServerError, err.Error())
	}

	s.logger.Debug("detect complete",
		"detections", len(dets),
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", c.Locals("requestid"),
	)

	resp := remote.DetectResponse{
		Success:      true,
		Detections:   make([]remote.WireDetection, 0, len(dets)),
		Instructions: wireInstructions(instrs),
		Language:     req.Language,
	}
	for _, d := range dets {
		resp.Detections = append(resp.Detections, remote.FromDetection(d))
	}
	return c.JSON(resp)
}

// handleDetectWS answers every binary JPEG frame with a msgpack reply.
func (s *Server) handleDetectWS(conn *websocket.Conn) {
	ip := conn.RemoteAddr().String()
	s.logger.Debug("ws client connected", "remote", ip)
	defer s.logger.Debug("ws client disconnected", "remote", ip)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		reply := s.detectFrame(data)
		out, err := wsdetect.EncodeReply(reply)
		if err != nil {
			s.logger.Error("encode reply", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return
		}
	}
}

func (s *Server) detectFrame(data []byte) wsdetect.Reply {
	start := time.Now()
	img, err := detection.DecodeImage(data)
	if err != nil {
		return wsdetect.Reply{Error: err.Error()}
	}
	dets, _, err := s.Detect(context.Background(), img)
	if err != nil {
		return wsdetect.Reply{Error: err.Error()}
	}
	if dets == nil {
		dets = []detection.Detection{}
	}
	return wsdetect.Reply{
		Success:    true,
		Detections: dets,
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}

func failure(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(remote.DetectResponse{Success: false, Error: msg})
}

func wireInstructions(instrs []navigation.Instruction) []remote.WireInstruction {
	out := make([]remote.WireInstruction, 0, len(instrs))
	for _, in := range instrs {
		out = append(out, remote.WireInstruction{Message: in.Message, Direction: in.Zone.String()})
	}
	return out
}

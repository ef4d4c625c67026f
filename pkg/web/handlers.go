package web

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.CurrentStatus())
}

// handleSummary returns 204 until the first active-mode frame.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	s.mu.RLock()
	sum := s.summary
	s.mu.RUnlock()

	if sum == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(sum)
}

func (s *Server) handleOverlay(c *fiber.Ctx) error {
	s.mu.RLock()
	ov := s.overlay
	s.mu.RUnlock()

	if ov == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(ov)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskline/helpdesk-service/internal/api/dto"
	"github.com/deskline/helpdesk-service/internal/service"
)

// PresenceLister reports technicians with a live realtime connection.
type PresenceLister interface {
	OnlineTechnicians() []string
}

// TechniciansHandler serves scores and presence.
type TechniciansHandler struct {
	lifecycle *service.TicketLifecycle
	presence  PresenceLister
}

// NewTechniciansHandler constructs handler.
func NewTechniciansHandler(lifecycle *service.TicketLifecycle, presence PresenceLister) *TechniciansHandler {
	return &TechniciansHandler{lifecycle: lifecycle, presence: presence}
}

// Score GET /api/technicians/:id/score.
func (h *TechniciansHandler) Score(c *fiber.Ctx) error {
	score, err := h.lifecycle.Score(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewScoreResponse(*score)})
}

// Leaderboard GET /api/technicians/leaderboard?limit=N.
func (h *TechniciansHandler) Leaderboard(c *fiber.Ctx) error {
	scores, err := h.lifecycle.Leaderboard(c.UserContext(), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	items := make([]dto.ScoreResponse, 0, len(scores))
	for _, s := range scores {
		items = append(items, dto.NewScoreResponse(s))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Online GET /api/technicians/online.
func (h *TechniciansHandler) Online(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.presence.OnlineTechnicians()})
}

package dto

import (
	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=200"`
	Description string                `json:"description" validate:"max=5000"`
	Type        string                `json:"type" validate:"max=64"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
}

// ClaimTicketRequest is the optional body of a claim. Admins may name the
// technician they claim for.
type ClaimTicketRequest struct {
	TechnicianID string `json:"technician_id" validate:"omitempty,max=64"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,ticket_status"`
}

// TicketResponse is the ticket snapshot returned by the API. It is the same
// shape carried in realtime events.
type TicketResponse = events.TicketPayload

// NewTicketResponse renders a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return events.NewTicketPayload(t)
}

// NewTicketListResponse renders a ticket list.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// ScoreResponse reports a technician's points.
type ScoreResponse struct {
	TechnicianID string `json:"technician_id"`
	Points       int64  `json:"points"`
}

// NewScoreResponse renders a score.
func NewScoreResponse(s domain.TechnicianScore) ScoreResponse {
	return ScoreResponse{TechnicianID: s.TechnicianID, Points: s.Points}
}

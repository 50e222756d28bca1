package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/deskline/helpdesk-service/internal/domain"
)

// Kind names a realtime event on the wire.
type Kind string

const (
	KindTicketCreated       Kind = "ticket-created"
	KindTicketClaimed       Kind = "ticket-claimed"
	KindTicketUpdated       Kind = "ticket-updated"
	KindTechnicianAvailable Kind = "technician-available"
)

// TicketKinds lists the kinds that carry a ticket snapshot.
var TicketKinds = []Kind{KindTicketCreated, KindTicketClaimed, KindTicketUpdated}

// TicketPayload is the JSON snapshot of a ticket, shared by the HTTP API and
// realtime events.
type TicketPayload struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Type        string                `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	CreatedBy   string                `json:"created_by"`
	AssignedTo  *string               `json:"assigned_to"`
	Version     int64                 `json:"version"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ClosedAt    *time.Time            `json:"closed_at"`
}

// NewTicketPayload snapshots t.
func NewTicketPayload(t *domain.Ticket) TicketPayload {
	c := t.Clone()
	return TicketPayload{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Type:        c.Type,
		Priority:    c.Priority,
		Status:      c.Status,
		CreatedBy:   c.CreatedBy,
		AssignedTo:  c.AssignedTo,
		Version:     c.Version,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		ClosedAt:    c.ClosedAt,
	}
}

// Event is a ticket lifecycle event. Its JSON form is the envelope sent to
// realtime subscribers.
type Event struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"type"`
	Ticket    TicketPayload `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewTicketEvent builds an event carrying the post-transition snapshot.
func NewTicketEvent(kind Kind, t *domain.Ticket) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Ticket:    NewTicketPayload(t),
		Timestamp: time.Now().UTC(),
	}
}

// AvailabilityMessage is sent by technician clients to announce presence.
type AvailabilityMessage struct {
	Kind         Kind   `json:"type"`
	TechnicianID string `json:"technician_id"`
}

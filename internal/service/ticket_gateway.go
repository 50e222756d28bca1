package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
	apperrors "github.com/deskline/helpdesk-service/pkg/util/errorutil"
)

// TicketGateway is the authenticated entry point for ticket operations. It
// runs the lifecycle for a verified identity and, once a write has
// committed, publishes the resulting snapshot.
type TicketGateway struct {
	lifecycle  *TicketLifecycle
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTicketGateway wires the gateway.
func NewTicketGateway(lifecycle *TicketLifecycle, dispatcher events.Dispatcher, logger *zap.Logger) *TicketGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketGateway{lifecycle: lifecycle, dispatcher: dispatcher, logger: logger}
}

// CreateTicket files a ticket as the caller.
func (g *TicketGateway) CreateTicket(ctx context.Context, caller domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.Create(ctx, caller.SubjectID, input)
	if err != nil {
		return nil, err
	}
	g.publish(ctx, events.KindTicketCreated, ticket)
	return ticket, nil
}

// ClaimTicket claims a ticket for the caller. An ADMIN may name another
// technician in onBehalfOf; a TECHNICIAN can only claim for themselves.
func (g *TicketGateway) ClaimTicket(ctx context.Context, caller domain.Identity, ticketID, onBehalfOf string) (*domain.Ticket, error) {
	technicianID := caller.SubjectID
	if onBehalfOf != "" && onBehalfOf != caller.SubjectID {
		if caller.Role != domain.RoleAdmin {
			return nil, apperrors.NewForbidden("only admins can claim on behalf of another technician")
		}
		technicianID = onBehalfOf
	}
	ticket, err := g.lifecycle.Claim(ctx, ticketID, technicianID, caller.Role)
	if err != nil {
		return nil, err
	}
	g.publish(ctx, events.KindTicketClaimed, ticket)
	return ticket, nil
}

// TransitionTicket changes a ticket's status.
func (g *TicketGateway) TransitionTicket(ctx context.Context, caller domain.Identity, ticketID string, to domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := g.lifecycle.Transition(ctx, ticketID, to, caller.Role)
	if err != nil {
		return nil, err
	}
	g.publish(ctx, events.KindTicketUpdated, ticket)
	return ticket, nil
}

// GetTicket returns any ticket to an authenticated caller.
func (g *TicketGateway) GetTicket(ctx context.Context, _ domain.Identity, ticketID string) (*domain.Ticket, error) {
	return g.lifecycle.Get(ctx, ticketID)
}

// ListTickets returns the tickets the caller may see.
func (g *TicketGateway) ListTickets(ctx context.Context, caller domain.Identity) ([]domain.Ticket, error) {
	return g.lifecycle.List(ctx, caller.Role, caller.SubjectID)
}

// Lifecycle exposes the read side used by the technician endpoints.
func (g *TicketGateway) Lifecycle() *TicketLifecycle {
	return g.lifecycle
}

// publish runs detached from the request so an event for a committed write
// still goes out when the client has already gone away. Failures are logged
// and never undo the write.
func (g *TicketGateway) publish(ctx context.Context, kind events.Kind, ticket *domain.Ticket) {
	if g.dispatcher == nil {
		return
	}
	event := events.NewTicketEvent(kind, ticket)
	if err := g.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Warn("publish ticket event",
			zap.String("event_type", string(kind)),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

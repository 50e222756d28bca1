package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/events"
	"github.com/deskline/helpdesk-service/internal/observability"
)

// Broadcaster delivers a ticket event to realtime subscribers, either on
// this instance or across all instances.
type Broadcaster interface {
	Broadcast(ctx context.Context, event events.Event) error
}

// NotificationService forwards dispatched ticket events to realtime
// subscribers.
type NotificationService struct {
	dispatcher  events.Dispatcher
	broadcaster Broadcaster
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, broadcaster Broadcaster, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// RegisterHandlers subscribes to every ticket event kind.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.broadcaster == nil {
		return
	}
	for _, kind := range events.TicketKinds {
		n.dispatcher.Subscribe(kind, n.handleTicketEvent)
	}
}

func (n *NotificationService) handleTicketEvent(ctx context.Context, event events.Event) error {
	if err := n.broadcaster.Broadcast(ctx, event); err != nil {
		return err
	}
	n.metrics.RecordPublish(string(event.Kind))
	n.logger.Debug("ticket event broadcast",
		zap.String("event_type", string(event.Kind)),
		zap.String("ticket_id", event.Ticket.ID),
		zap.Int64("version", event.Ticket.Version))
	return nil
}

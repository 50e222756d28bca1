package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
)

// Subscriber is one connected realtime client.
type Subscriber interface {
	ID() string
	// Send queues msg without blocking and reports false when the
	// subscriber cannot keep up.
	Send(msg []byte) bool
	Close()
}

// Hub fans ticket events out to every connected subscriber and tracks which
// technicians are online.
//
// For each ticket the hub remembers the highest version it has delivered and
// drops events that are not newer, so a snapshot that lost a race to the
// commit of a later one is never shown after it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	presence    map[string]string // technician id -> connection id
	delivered   map[string]int64  // ticket id -> last delivered version
	logger      *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]Subscriber),
		presence:    make(map[string]string),
		delivered:   make(map[string]int64),
		logger:      logger,
	}
}

// Register adds a subscriber to the broadcast set.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s.ID()] = s
	h.logger.Debug("subscriber registered", zap.String("connection_id", s.ID()))
}

// Publish broadcasts a post-transition ticket snapshot. It reports whether
// the event was fanned out; stale or duplicate snapshots return false.
func (h *Hub) Publish(kind events.Kind, ticket *domain.Ticket) bool {
	return h.Deliver(events.NewTicketEvent(kind, ticket))
}

// Broadcast satisfies the notification sink used by the single instance
// deployment.
func (h *Hub) Broadcast(_ context.Context, event events.Event) error {
	h.Deliver(event)
	return nil
}

// Deliver fans a prepared event out to all subscribers.
func (h *Hub) Deliver(event events.Event) bool {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal realtime event", zap.Error(err))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ticketID := event.Ticket.ID
	if last, ok := h.delivered[ticketID]; ok && event.Ticket.Version <= last {
		h.logger.Debug("dropping stale ticket event",
			zap.String("ticket_id", ticketID),
			zap.String("event_type", string(event.Kind)),
			zap.Int64("version", event.Ticket.Version),
			zap.Int64("delivered_version", last))
		return false
	}
	h.delivered[ticketID] = event.Ticket.Version

	for id, sub := range h.subscribers {
		if sub.Send(msg) {
			continue
		}
		h.logger.Warn("subscriber too slow; disconnecting", zap.String("connection_id", id))
		h.removeLocked(id)
	}
	return true
}

// MarkAvailable associates a technician with a live connection. The latest
// call for a technician wins.
func (h *Hub) MarkAvailable(technicianID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence[technicianID] = connectionID
	h.logger.Info("technician online",
		zap.String("technician_id", technicianID),
		zap.String("connection_id", connectionID))
}

// OnDisconnect drops the connection and any presence entry that still points
// at it. Presence already superseded by a newer connection is left alone.
func (h *Hub) OnDisconnect(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connectionID)
}

func (h *Hub) removeLocked(connectionID string) {
	if sub, ok := h.subscribers[connectionID]; ok {
		delete(h.subscribers, connectionID)
		sub.Close()
	}
	for technicianID, conn := range h.presence {
		if conn == connectionID {
			delete(h.presence, technicianID)
			h.logger.Info("technician offline",
				zap.String("technician_id", technicianID),
				zap.String("connection_id", connectionID))
		}
	}
}

// ConnectionFor returns the connection a technician was last seen on.
func (h *Hub) ConnectionFor(technicianID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.presence[technicianID]
	return conn, ok
}

// OnlineTechnicians lists technicians with a live presence entry, sorted.
func (h *Hub) OnlineTechnicians() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.presence))
	for id := range h.presence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

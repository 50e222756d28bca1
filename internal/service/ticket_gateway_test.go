package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
	"github.com/deskline/helpdesk-service/internal/observability"
	"github.com/deskline/helpdesk-service/internal/repository"
	apperrors "github.com/deskline/helpdesk-service/pkg/util/errorutil"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
	ctxErr []error
	err    error
}

func (r *recordingBroadcaster) Broadcast(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.ctxErr = append(r.ctxErr, ctx.Err())
	return r.err
}

func (r *recordingBroadcaster) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newGateway(t *testing.T, sink Broadcaster, logger *zap.Logger) (*TicketGateway, *observability.Metrics) {
	t.Helper()
	store := repository.NewMemoryStore()
	lifecycle := NewTicketLifecycle(LifecycleDependencies{
		TicketRepo: store.Tickets(),
		ScoreRepo:  store.Scores(),
		Logger:     logger,
	})
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()
	NewNotificationService(dispatcher, sink, metrics, logger).RegisterHandlers()
	return NewTicketGateway(lifecycle, dispatcher, logger), metrics
}

var (
	requester  = domain.Identity{SubjectID: "user-1", Role: domain.RoleUser}
	technician = domain.Identity{SubjectID: "tech-1", Role: domain.RoleTechnician}
	admin      = domain.Identity{SubjectID: "admin-1", Role: domain.RoleAdmin}
)

func TestGatewayPublishesCommittedSnapshots(t *testing.T) {
	sink := &recordingBroadcaster{}
	gw, metrics := newGateway(t, sink, nil)
	ctx := context.Background()

	ticket, err := gw.CreateTicket(ctx, requester, TicketCreateInput{Title: "Laptop"})
	require.NoError(t, err)
	_, err = gw.ClaimTicket(ctx, technician, ticket.ID, "")
	require.NoError(t, err)
	_, err = gw.TransitionTicket(ctx, technician, ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{events.KindTicketCreated, events.KindTicketClaimed, events.KindTicketUpdated}, sink.kinds())
	last := sink.events[2].Ticket
	assert.Equal(t, domain.TicketStatusResolved, last.Status)
	assert.EqualValues(t, 3, last.Version)
	assert.EqualValues(t, 1, metrics.Snapshot().Published[string(events.KindTicketUpdated)])
}

func TestGatewayDoesNotPublishFailures(t *testing.T) {
	sink := &recordingBroadcaster{}
	gw, _ := newGateway(t, sink, nil)
	ctx := context.Background()

	ticket, err := gw.CreateTicket(ctx, requester, TicketCreateInput{Title: "Laptop"})
	require.NoError(t, err)

	_, err = gw.ClaimTicket(ctx, requester, ticket.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = gw.TransitionTicket(ctx, technician, ticket.ID, domain.TicketStatusClosed)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	_, err = gw.CreateTicket(ctx, requester, TicketCreateInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	assert.Equal(t, []events.Kind{events.KindTicketCreated}, sink.kinds())
}

// cancellingTickets cancels the request context right after the claim
// commits, as if the client hung up mid-request.
type cancellingTickets struct {
	repository.TicketRepository
	cancel context.CancelFunc
}

func (c cancellingTickets) Claim(ctx context.Context, id, technicianID string) (*domain.Ticket, error) {
	ticket, err := c.TicketRepository.Claim(ctx, id, technicianID)
	c.cancel()
	return ticket, err
}

func TestGatewayPublishesAfterClientCancellation(t *testing.T) {
	sink := &recordingBroadcaster{}
	store := repository.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle := NewTicketLifecycle(LifecycleDependencies{
		TicketRepo: cancellingTickets{TicketRepository: store.Tickets(), cancel: cancel},
		ScoreRepo:  store.Scores(),
	})
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewNotificationService(dispatcher, sink, nil, nil).RegisterHandlers()
	gw := NewTicketGateway(lifecycle, dispatcher, nil)

	ticket, err := gw.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "Laptop"})
	require.NoError(t, err)

	claimed, err := gw.ClaimTicket(ctx, technician, ticket.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
	require.Error(t, ctx.Err())

	require.Equal(t, []events.Kind{events.KindTicketCreated, events.KindTicketClaimed}, sink.kinds())
	assert.NoError(t, sink.ctxErr[1])
}

func TestGatewayAdminClaimsOnBehalf(t *testing.T) {
	sink := &recordingBroadcaster{}
	gw, _ := newGateway(t, sink, nil)
	ctx := context.Background()

	first, err := gw.CreateTicket(ctx, requester, TicketCreateInput{Title: "one"})
	require.NoError(t, err)
	second, err := gw.CreateTicket(ctx, requester, TicketCreateInput{Title: "two"})
	require.NoError(t, err)

	_, err = gw.ClaimTicket(ctx, technician, first.ID, "tech-2")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	claimed, err := gw.ClaimTicket(ctx, admin, first.ID, "tech-2")
	require.NoError(t, err)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, "tech-2", *claimed.AssignedTo)

	own, err := gw.ClaimTicket(ctx, technician, second.ID, technician.SubjectID)
	require.NoError(t, err)
	assert.Equal(t, technician.SubjectID, *own.AssignedTo)
}

func TestGatewayBroadcastFailureKeepsCommit(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordingBroadcaster{err: errors.New("redis down")}
	gw, metrics := newGateway(t, sink, zap.New(core))
	ctx := context.Background()

	ticket, err := gw.CreateTicket(ctx, requester, TicketCreateInput{Title: "Laptop"})
	require.NoError(t, err)

	stored, err := gw.GetTicket(ctx, technician, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, stored.ID)
	assert.Zero(t, metrics.Snapshot().Published[string(events.KindTicketCreated)])
	assert.Equal(t, 1, logs.FilterMessage("publish ticket event").Len())
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/repository"
	apperrors "github.com/deskline/helpdesk-service/pkg/util/errorutil"
)

// DefaultPointsPerResolution is awarded to the assignee when a ticket
// reaches a terminal status.
const DefaultPointsPerResolution int64 = 10

// TicketLifecycle enforces the ticket state machine. The store's conditional
// updates are the only arbiter between concurrent callers; nothing here
// holds a lock across a ticket operation.
type TicketLifecycle struct {
	tickets repository.TicketRepository
	scores  repository.ScoreRepository
	points  int64
	logger  *zap.Logger
	now     func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle.
type LifecycleDependencies struct {
	TicketRepo          repository.TicketRepository
	ScoreRepo           repository.ScoreRepository
	PointsPerResolution int64
	Logger              *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Type        string
	Priority    domain.TicketPriority
}

// NewTicketLifecycle constructs the lifecycle.
func NewTicketLifecycle(deps LifecycleDependencies) *TicketLifecycle {
	points := deps.PointsPerResolution
	if points <= 0 {
		points = DefaultPointsPerResolution
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketLifecycle{
		tickets: deps.TicketRepo,
		scores:  deps.ScoreRepo,
		points:  points,
		logger:  logger,
		now:     time.Now,
	}
}

// Create files a new OPEN, unassigned ticket.
func (l *TicketLifecycle) Create(ctx context.Context, filerID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Type:        strings.TrimSpace(input.Type),
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   filerID,
	}
	if err := l.tickets.Create(ctx, ticket); err != nil {
		return nil, l.storageError("create ticket", err)
	}
	l.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("created_by", filerID),
		zap.String("priority", string(ticket.Priority)))
	return ticket, nil
}

// Claim assigns an OPEN ticket to technicianID and moves it to IN_PROGRESS.
// Of any number of concurrent claims exactly one succeeds; the rest get
// ALREADY_CLAIMED.
func (l *TicketLifecycle) Claim(ctx context.Context, ticketID, technicianID string, callerRole domain.Role) (*domain.Ticket, error) {
	if !callerRole.IsStaff() {
		return nil, apperrors.NewForbidden("only technicians can claim tickets")
	}
	if strings.TrimSpace(technicianID) == "" {
		return nil, apperrors.NewValidationError("technician id is required", nil)
	}

	ticket, err := l.tickets.Claim(ctx, ticketID, technicianID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		l.logger.Debug("claim lost",
			zap.String("ticket_id", ticketID),
			zap.String("technician_id", technicianID))
		return nil, apperrors.NewAlreadyClaimed(ticketID)
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	default:
		return nil, l.storageError("claim ticket", err)
	}

	l.logger.Info("ticket claimed",
		zap.String("ticket_id", ticket.ID),
		zap.String("technician_id", technicianID),
		zap.Int64("version", ticket.Version))
	return ticket, nil
}

// allowedTransitions lists the moves Transition accepts. OPEN leaves only
// through Claim.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusClosed},
}

func canTransition(from, to domain.TicketStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves a ticket along the status graph. Entering a terminal
// status stamps closed_at and awards the assignee in the same atomic write,
// so a ticket is scored exactly once.
func (l *TicketLifecycle) Transition(ctx context.Context, ticketID string, to domain.TicketStatus, callerRole domain.Role) (*domain.Ticket, error) {
	if !callerRole.IsStaff() {
		return nil, apperrors.NewForbidden("only technicians can change ticket status")
	}
	if !to.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(to)})
	}

	current, err := l.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canTransition(current.Status, to) {
		return nil, apperrors.NewInvalidTransition(string(current.Status), string(to))
	}

	params := repository.TransitionParams{
		TicketID: ticketID,
		From:     current.Status,
		To:       to,
	}
	if to.Terminal() {
		closedAt := l.now().UTC()
		params.ClosedAt = &closedAt
		params.Award = l.points
	}

	result, err := l.tickets.Transition(ctx, params)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		// Another writer moved the ticket first. Report against the state
		// that won rather than retrying, which could score twice.
		latest, getErr := l.Get(ctx, ticketID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewInvalidTransition(string(latest.Status), string(to))
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	default:
		return nil, l.storageError("transition ticket", err)
	}

	fields := []zap.Field{
		zap.String("ticket_id", ticketID),
		zap.String("from", string(params.From)),
		zap.String("to", string(to)),
		zap.Int64("version", result.Ticket.Version),
	}
	if result.Score != nil {
		fields = append(fields,
			zap.String("technician_id", result.Score.TechnicianID),
			zap.Int64("points", result.Score.Points))
	}
	l.logger.Info("ticket transitioned", fields...)
	return result.Ticket, nil
}

// Get returns a ticket by id.
func (l *TicketLifecycle) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := l.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, l.storageError("get ticket", err)
	}
	return ticket, nil
}

// List returns the tickets visible to the caller, newest first.
func (l *TicketLifecycle) List(ctx context.Context, callerRole domain.Role, callerID string) ([]domain.Ticket, error) {
	if !callerRole.Valid() {
		return nil, apperrors.NewForbidden("unknown role")
	}
	tickets, err := l.tickets.List(ctx, repository.TicketScope{Role: callerRole, SubjectID: callerID})
	if err != nil {
		return nil, l.storageError("list tickets", err)
	}
	return tickets, nil
}

// Score returns a technician's balance; unknown technicians have zero.
func (l *TicketLifecycle) Score(ctx context.Context, technicianID string) (*domain.TechnicianScore, error) {
	score, err := l.scores.Get(ctx, technicianID)
	if err != nil {
		return nil, l.storageError("get score", err)
	}
	return score, nil
}

// Leaderboard returns the top technicians by points.
func (l *TicketLifecycle) Leaderboard(ctx context.Context, limit int) ([]domain.TechnicianScore, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	scores, err := l.scores.Leaderboard(ctx, limit)
	if err != nil {
		return nil, l.storageError("leaderboard", err)
	}
	return scores, nil
}

func (l *TicketLifecycle) storageError(op string, err error) error {
	l.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	return apperrors.NewStorageUnavailable(err)
}

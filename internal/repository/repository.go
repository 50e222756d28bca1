package repository

import (
	"context"
	"errors"
	"time"

	"github.com/deskline/helpdesk-service/internal/domain"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a conditional update matched no rows
	// because the row no longer holds the expected prior state.
	ErrConflict = errors.New("repository: conditional update lost")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("repository: duplicate")
)

// TicketScope selects which tickets a caller may list.
type TicketScope struct {
	Role      domain.Role
	SubjectID string
}

// TransitionParams describes a conditional status move.
//
// The update applies only while the row still holds From. ClosedAt is written
// only if the row has none yet. When Award is positive and the ticket has an
// assignee, the assignee's score is incremented in the same atomic unit.
type TransitionParams struct {
	TicketID string
	From     domain.TicketStatus
	To       domain.TicketStatus
	ClosedAt *time.Time
	Award    int64
}

// TransitionResult carries the committed snapshot and, when points were
// awarded, the assignee's updated balance.
type TransitionResult struct {
	Ticket *domain.Ticket
	Score  *domain.TechnicianScore
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, scope TicketScope) ([]domain.Ticket, error)
	// Claim moves an OPEN, unassigned ticket to IN_PROGRESS owned by
	// technicianID. Exactly one concurrent caller can succeed; the others
	// get ErrConflict.
	Claim(ctx context.Context, id, technicianID string) (*domain.Ticket, error)
	Transition(ctx context.Context, params TransitionParams) (*TransitionResult, error)
}

// ScoreRepository is the technician point ledger.
type ScoreRepository interface {
	Get(ctx context.Context, technicianID string) (*domain.TechnicianScore, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.TechnicianScore, error)
	Increment(ctx context.Context, technicianID string, points int64) (*domain.TechnicianScore, error)
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskline/helpdesk-service/internal/domain"
)

// MemoryStore keeps tickets, scores and users in process. Every conditional
// update runs under a single lock, which gives the same claim-once and
// score-once guarantees as the Postgres implementation. It backs the service
// when no database is configured and is used throughout the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	scores  map[string]*domain.TechnicianScore
	users   map[string]*domain.User
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*domain.Ticket),
		scores:  make(map[string]*domain.TechnicianScore),
		users:   make(map[string]*domain.User),
		now:     time.Now,
	}
}

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// Scores exposes the store as a ScoreRepository.
func (s *MemoryStore) Scores() ScoreRepository { return memoryScores{s} }

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	now := m.s.now().UTC()
	ticket.ID = uuid.NewString()
	ticket.Version = 1
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	m.s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m memoryTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (m memoryTickets) List(ctx context.Context, scope TicketScope) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	result := []domain.Ticket{}
	for _, ticket := range m.s.tickets {
		if visible(scope, ticket) {
			result = append(result, *ticket.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func visible(scope TicketScope, ticket *domain.Ticket) bool {
	switch scope.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleTechnician:
		if ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress {
			return true
		}
		return ticket.AssignedTo != nil && *ticket.AssignedTo == scope.SubjectID
	case domain.RoleUser:
		return ticket.CreatedBy == scope.SubjectID
	}
	return false
}

func (m memoryTickets) Claim(ctx context.Context, id, technicianID string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.AssignedTo != nil {
		return nil, ErrConflict
	}
	assignee := technicianID
	ticket.Status = domain.TicketStatusInProgress
	ticket.AssignedTo = &assignee
	ticket.Version++
	ticket.UpdatedAt = m.s.now().UTC()
	return ticket.Clone(), nil
}

func (m memoryTickets) Transition(ctx context.Context, params TransitionParams) (*TransitionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	ticket, ok := m.s.tickets[params.TicketID]
	if !ok {
		return nil, ErrNotFound
	}
	if ticket.Status != params.From {
		return nil, ErrConflict
	}
	now := m.s.now().UTC()
	ticket.Status = params.To
	if ticket.ClosedAt == nil && params.ClosedAt != nil {
		closed := *params.ClosedAt
		ticket.ClosedAt = &closed
	}
	ticket.Version++
	ticket.UpdatedAt = now

	result := &TransitionResult{Ticket: ticket.Clone()}
	if params.Award > 0 && ticket.AssignedTo != nil {
		result.Score = m.s.incrementLocked(*ticket.AssignedTo, params.Award, now)
	}
	return result, nil
}

func (s *MemoryStore) incrementLocked(technicianID string, points int64, now time.Time) *domain.TechnicianScore {
	score, ok := s.scores[technicianID]
	if !ok {
		score = &domain.TechnicianScore{TechnicianID: technicianID}
		s.scores[technicianID] = score
	}
	score.Points += points
	score.UpdatedAt = now
	copied := *score
	return &copied
}

type memoryScores struct{ s *MemoryStore }

func (m memoryScores) Get(ctx context.Context, technicianID string) (*domain.TechnicianScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	if score, ok := m.s.scores[technicianID]; ok {
		copied := *score
		return &copied, nil
	}
	return &domain.TechnicianScore{TechnicianID: technicianID}, nil
}

func (m memoryScores) Leaderboard(ctx context.Context, limit int) ([]domain.TechnicianScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	result := make([]domain.TechnicianScore, 0, len(m.s.scores))
	for _, score := range m.s.scores {
		result = append(result, *score)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Points != result[j].Points {
			return result[i].Points > result[j].Points
		}
		return result[i].TechnicianID < result[j].TechnicianID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m memoryScores) Increment(ctx context.Context, technicianID string, points int64) (*domain.TechnicianScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if points < 0 {
		return nil, errNegativeIncrement
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.incrementLocked(technicianID, points, m.s.now().UTC()), nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range m.s.users {
		if existing.Email == email {
			return ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = m.s.now().UTC()
	copied := *user
	m.s.users[user.ID] = &copied
	return nil
}

func (m memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	user, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m memoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, user := range m.s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

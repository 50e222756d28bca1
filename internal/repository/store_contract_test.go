package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskline/helpdesk-service/internal/domain"
)

type storeSet struct {
	tickets TicketRepository
	scores  ScoreRepository
	users   UserRepository

	// backdate rewrites created_at so ordering ties can be staged.
	backdate func(t *testing.T, at time.Time, ids ...string)
}

// runStoreContract exercises the behaviour every store implementation must
// share.
func runStoreContract(t *testing.T, newStores func(t *testing.T) storeSet) {
	t.Run("create assigns identity and version", func(t *testing.T) {
		s := newStores(t)
		ticket := newOpenTicket("user-1")
		require.NoError(t, s.tickets.Create(context.Background(), ticket))
		assert.NotEmpty(t, ticket.ID)
		assert.EqualValues(t, 1, ticket.Version)
		assert.False(t, ticket.CreatedAt.IsZero())

		got, err := s.tickets.GetByID(context.Background(), ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket.Title, got.Title)
		assert.Equal(t, domain.TicketStatusOpen, got.Status)

		_, err = s.tickets.GetByID(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("claim succeeds exactly once", func(t *testing.T) {
		s := newStores(t)
		ticket := newOpenTicket("user-1")
		require.NoError(t, s.tickets.Create(context.Background(), ticket))

		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(tech string) {
				defer wg.Done()
				_, err := s.tickets.Claim(context.Background(), ticket.ID, tech)
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, ErrConflict):
					conflicts.Add(1)
				}
			}(fmt.Sprintf("tech-%d", i))
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, 15, conflicts.Load())

		got, err := s.tickets.GetByID(context.Background(), ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, got.Status)
		assert.EqualValues(t, 2, got.Version)

		_, err = s.tickets.Claim(context.Background(), uuid.NewString(), "tech-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("terminal transition awards once", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		ticket := newOpenTicket("user-1")
		require.NoError(t, s.tickets.Create(ctx, ticket))
		_, err := s.tickets.Claim(ctx, ticket.ID, "tech-score")
		require.NoError(t, err)

		closedAt := time.Now().UTC()
		params := TransitionParams{
			TicketID: ticket.ID,
			From:     domain.TicketStatusInProgress,
			To:       domain.TicketStatusResolved,
			ClosedAt: &closedAt,
			Award:    10,
		}
		result, err := s.tickets.Transition(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusResolved, result.Ticket.Status)
		require.NotNil(t, result.Ticket.ClosedAt)
		require.NotNil(t, result.Score)
		assert.EqualValues(t, 10, result.Score.Points)
		assert.EqualValues(t, 3, result.Ticket.Version)

		_, err = s.tickets.Transition(ctx, params)
		assert.ErrorIs(t, err, ErrConflict)

		params.TicketID = uuid.NewString()
		_, err = s.tickets.Transition(ctx, params)
		assert.ErrorIs(t, err, ErrNotFound)

		score, err := s.scores.Get(ctx, "tech-score")
		require.NoError(t, err)
		assert.EqualValues(t, 10, score.Points)
	})

	t.Run("list scoping", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		mine := newOpenTicket("scope-user")
		theirs := newOpenTicket("scope-other")
		require.NoError(t, s.tickets.Create(ctx, mine))
		require.NoError(t, s.tickets.Create(ctx, theirs))

		got, err := s.tickets.List(ctx, TicketScope{Role: domain.RoleUser, SubjectID: "scope-user"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, mine.ID, got[0].ID)

		got, err = s.tickets.List(ctx, TicketScope{Role: domain.RoleAdmin})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(got), 2)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt), "newest first")
		}
	})

	t.Run("list breaks created_at ties by id", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		ids := make([]string, 0, 4)
		for i := 0; i < 4; i++ {
			ticket := newOpenTicket("tie-user")
			require.NoError(t, s.tickets.Create(ctx, ticket))
			ids = append(ids, ticket.ID)
		}
		older := newOpenTicket("tie-user")
		require.NoError(t, s.tickets.Create(ctx, older))

		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.backdate(t, at, ids...)
		s.backdate(t, at.Add(-time.Hour), older.ID)

		got, err := s.tickets.List(ctx, TicketScope{Role: domain.RoleUser, SubjectID: "tie-user"})
		require.NoError(t, err)
		require.Len(t, got, 5)

		want := append([]string(nil), ids...)
		sort.Sort(sort.Reverse(sort.StringSlice(want)))
		want = append(want, older.ID)
		gotIDs := make([]string, 0, len(got))
		for _, ticket := range got {
			gotIDs = append(gotIDs, ticket.ID)
		}
		assert.Equal(t, want, gotIDs)
		assert.True(t, got[0].CreatedAt.Equal(at))
	})

	t.Run("scores and leaderboard", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()

		zero, err := s.scores.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, zero.Points)

		_, err = s.scores.Increment(ctx, "lb-a", 5)
		require.NoError(t, err)
		_, err = s.scores.Increment(ctx, "lb-b", 20)
		require.NoError(t, err)
		_, err = s.scores.Increment(ctx, "lb-a", 5)
		require.NoError(t, err)
		_, err = s.scores.Increment(ctx, "lb-a", -1)
		assert.Error(t, err)

		board, err := s.scores.Leaderboard(ctx, 2)
		require.NoError(t, err)
		require.Len(t, board, 2)
		assert.Equal(t, "lb-b", board[0].TechnicianID)
		assert.Equal(t, "lb-a", board[1].TechnicianID)
		assert.EqualValues(t, 10, board[1].Points)
	})

	t.Run("users are unique by email", func(t *testing.T) {
		s := newStores(t)
		ctx := context.Background()
		email := fmt.Sprintf("Ada-%s@Example.com", uuid.NewString()[:8])
		user := &domain.User{Name: "Ada", Email: email, PasswordHash: "x", Role: domain.RoleTechnician}
		require.NoError(t, s.users.Create(ctx, user))

		got, err := s.users.GetByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		byID, err := s.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleTechnician, byID.Role)

		dup := &domain.User{Name: "Ada", Email: email, PasswordHash: "y", Role: domain.RoleUser}
		assert.ErrorIs(t, s.users.Create(ctx, dup), ErrDuplicate)

		_, err = s.users.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func newOpenTicket(filer string) *domain.Ticket {
	return &domain.Ticket{
		Title:     "Monitor flickers",
		Type:      "hardware",
		Priority:  domain.TicketPriorityLow,
		Status:    domain.TicketStatusOpen,
		CreatedBy: filer,
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) storeSet {
		store := NewMemoryStore()
		backdate := func(t *testing.T, at time.Time, ids ...string) {
			store.mu.Lock()
			defer store.mu.Unlock()
			for _, id := range ids {
				ticket, ok := store.tickets[id]
				require.True(t, ok, id)
				ticket.CreatedAt = at
			}
		}
		return storeSet{
			tickets:  store.Tickets(),
			scores:   store.Scores(),
			users:    store.Users(),
			backdate: backdate,
		}
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ticket := newOpenTicket("user-1")
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	claimed, err := store.Tickets().Claim(ctx, ticket.ID, "tech-1")
	require.NoError(t, err)
	*claimed.AssignedTo = "someone-else"
	claimed.Status = domain.TicketStatusClosed

	got, err := store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "tech-1", *got.AssignedTo)
	assert.Equal(t, domain.TicketStatusInProgress, got.Status)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Tickets().Create(ctx, newOpenTicket("u")), context.Canceled)
	_, err := store.Tickets().Claim(ctx, "x", "t")
	assert.ErrorIs(t, err, context.Canceled)
}

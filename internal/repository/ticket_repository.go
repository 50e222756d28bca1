package repository

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskline/helpdesk-service/internal/domain"
)

const ticketColumns = `id, title, description, type, priority, status, created_by, assigned_to,
               version, created_at, updated_at, closed_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates a Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, type, priority, status, created_by)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, version, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translate(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, scope TicketScope) ([]domain.Ticket, error) {
	builder := psql.Select(ticketColumns).From("tickets").OrderBy("created_at DESC", "id DESC")
	switch scope.Role {
	case domain.RoleAdmin:
	case domain.RoleTechnician:
		builder = builder.Where(sq.Or{
			sq.Eq{"status": []string{string(domain.TicketStatusOpen), string(domain.TicketStatusInProgress)}},
			sq.Eq{"assigned_to": scope.SubjectID},
		})
	case domain.RoleUser:
		builder = builder.Where(sq.Eq{"created_by": scope.SubjectID})
	default:
		return []domain.Ticket{}, nil
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Claim(ctx context.Context, id, technicianID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$3, assigned_to=$2, version=version+1, updated_at=NOW()
        WHERE id=$1 AND status=$4 AND assigned_to IS NULL
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		id,
		technicianID,
		domain.TicketStatusInProgress,
		domain.TicketStatusOpen,
	))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, translate(err)
	}
	return nil, r.conflictOrMissing(ctx, r.pool, id)
}

func (r *ticketRepository) Transition(ctx context.Context, params TransitionParams) (*TransitionResult, error) {
	const query = `
        UPDATE tickets SET status=$3, closed_at=COALESCE(closed_at, $4), version=version+1, updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + ticketColumns

	var result TransitionResult
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, query, params.TicketID, params.From, params.To, params.ClosedAt))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.conflictOrMissing(ctx, tx, params.TicketID)
		}
		if err != nil {
			return translate(err)
		}
		result.Ticket = ticket

		if params.Award > 0 && ticket.AssignedTo != nil {
			score, err := incrementScore(ctx, tx, *ticket.AssignedTo, params.Award)
			if err != nil {
				return err
			}
			result.Score = score
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ticketRepository) conflictOrMissing(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return translate(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

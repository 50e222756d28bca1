package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskline/helpdesk-service/internal/domain"
)

var errNegativeIncrement = errors.New("repository: score increment must not be negative")

type scoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository returns the Postgres-backed point ledger.
func NewScoreRepository(pool *pgxpool.Pool) ScoreRepository {
	return &scoreRepository{pool: pool}
}

// Get returns a zero balance for technicians that never scored.
func (r *scoreRepository) Get(ctx context.Context, technicianID string) (*domain.TechnicianScore, error) {
	const query = `SELECT technician_id, points, updated_at FROM technician_scores WHERE technician_id=$1`
	var score domain.TechnicianScore
	err := r.pool.QueryRow(ctx, query, technicianID).Scan(&score.TechnicianID, &score.Points, &score.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.TechnicianScore{TechnicianID: technicianID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (r *scoreRepository) Leaderboard(ctx context.Context, limit int) ([]domain.TechnicianScore, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := psql.Select("technician_id", "points", "updated_at").
		From("technician_scores").
		OrderBy("points DESC", "technician_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TechnicianScore{}
	for rows.Next() {
		var score domain.TechnicianScore
		if err := rows.Scan(&score.TechnicianID, &score.Points, &score.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, score)
	}
	return result, rows.Err()
}

func (r *scoreRepository) Increment(ctx context.Context, technicianID string, points int64) (*domain.TechnicianScore, error) {
	return incrementScore(ctx, r.pool, technicianID, points)
}

func incrementScore(ctx context.Context, q querier, technicianID string, points int64) (*domain.TechnicianScore, error) {
	if points < 0 {
		return nil, errNegativeIncrement
	}
	const query = `
        INSERT INTO technician_scores (technician_id, points, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (technician_id) DO UPDATE
            SET points = technician_scores.points + EXCLUDED.points, updated_at = NOW()
        RETURNING technician_id, points, updated_at`
	var score domain.TechnicianScore
	if err := q.QueryRow(ctx, query, technicianID, points).Scan(&score.TechnicianID, &score.Points, &score.UpdatedAt); err != nil {
		return nil, err
	}
	return &score, nil
}

package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is a PostgreSQL-backed profile store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, account string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT account, sessions_created, sessions_participated,
		       total_earned_cents, average_rating, rating_count, updated_at
		FROM developer_profiles
		WHERE account = $1`, account).Scan(
		&p.Account, &p.SessionsCreated, &p.SessionsParticipated,
		&p.TotalEarnedCents, &p.AverageRating, &p.RatingCount, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO developer_profiles
			(account, sessions_created, sessions_participated,
			 total_earned_cents, average_rating, rating_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account) DO UPDATE SET
			sessions_created = EXCLUDED.sessions_created,
			sessions_participated = EXCLUDED.sessions_participated,
			total_earned_cents = EXCLUDED.total_earned_cents,
			average_rating = EXCLUDED.average_rating,
			rating_count = EXCLUDED.rating_count,
			updated_at = EXCLUDED.updated_at`,
		p.Account, p.SessionsCreated, p.SessionsParticipated,
		p.TotalEarnedCents, p.AverageRating, p.RatingCount, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertRating(ctx context.Context, r *Rating) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_ratings (session_id, rater, rated, score, feedback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, rater) DO NOTHING`,
		r.SessionID, r.Rater, r.Rated, r.Score, r.Feedback, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert rating: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListRatingsFor(ctx context.Context, rated string, limit int) ([]*Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, rater, rated, score, feedback, created_at
		FROM session_ratings
		WHERE rated = $1
		ORDER BY created_at DESC
		LIMIT $2`, rated, limit)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var out []*Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.SessionID, &r.Rater, &r.Rated, &r.Score, &r.Feedback, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

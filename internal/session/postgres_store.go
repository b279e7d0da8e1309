package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed session store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('sessions_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next session id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, creator, partner, title, description, hourly_rate_cents,
			 estimated_minutes, focus_areas, status, funds_locked_cents,
			 creator_confirmed, partner_confirmed,
			 created_at, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sess.ID, sess.Creator, nullIfEmpty(sess.Partner), sess.Title, sess.Description,
		sess.HourlyRateCents, sess.EstimatedMinutes, pq.Array(sess.FocusAreas),
		sess.Status, sess.FundsLockedCents,
		sess.CreatorConfirmed, sess.PartnerConfirmed,
		sess.CreatedAt, sess.StartedAt, sess.CompletedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, creator, partner, title, description, hourly_rate_cents,
		       estimated_minutes, focus_areas, status, funds_locked_cents,
		       creator_confirmed, partner_confirmed,
		       created_at, started_at, completed_at, updated_at
		FROM sessions
		WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			partner = $2, status = $3,
			creator_confirmed = $4, partner_confirmed = $5,
			started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1`,
		sess.ID, nullIfEmpty(sess.Partner), sess.Status,
		sess.CreatorConfirmed, sess.PartnerConfirmed,
		sess.StartedAt, sess.CompletedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, status string, beforeID int64, limit int) ([]*Session, error) {
	query := `
		SELECT id, creator, partner, title, description, hourly_rate_cents,
		       estimated_minutes, focus_areas, status, funds_locked_cents,
		       creator_confirmed, partner_confirmed,
		       created_at, started_at, completed_at, updated_at
		FROM sessions
		WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if beforeID > 0 {
		args = append(args, beforeID)
		query += fmt.Sprintf(` AND id < $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return s.querySessions(ctx, query, args...)
}

func (s *PostgresStore) ListByDeveloper(ctx context.Context, account string, beforeID int64, limit int) ([]*Session, error) {
	query := `
		SELECT id, creator, partner, title, description, hourly_rate_cents,
		       estimated_minutes, focus_areas, status, funds_locked_cents,
		       creator_confirmed, partner_confirmed,
		       created_at, started_at, completed_at, updated_at
		FROM sessions
		WHERE (creator = $1 OR partner = $1)`
	args := []any{account}
	if beforeID > 0 {
		args = append(args, beforeID)
		query += fmt.Sprintf(` AND id < $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return s.querySessions(ctx, query, args...)
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDispute(ctx context.Context, sessionID int64) (*Dispute, error) {
	var (
		d          Dispute
		resolvedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, reason, initiator, resolved, created_at, resolved_at
		FROM disputes
		WHERE session_id = $1`, sessionID).Scan(
		&d.SessionID, &d.Reason, &d.Initiator, &d.Resolved, &d.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}

func (s *PostgresStore) SaveDispute(ctx context.Context, d *Dispute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (session_id, reason, initiator, resolved, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at`,
		d.SessionID, d.Reason, d.Initiator, d.Resolved, d.CreatedAt, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("save dispute: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess        Session
		partner     sql.NullString
		focusAreas  pq.StringArray
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.Creator, &partner, &sess.Title, &sess.Description,
		&sess.HourlyRateCents, &sess.EstimatedMinutes, &focusAreas,
		&sess.Status, &sess.FundsLockedCents,
		&sess.CreatorConfirmed, &sess.PartnerConfirmed,
		&sess.CreatedAt, &startedAt, &completedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.Partner = partner.String
	sess.FocusAreas = focusAreas
	if startedAt.Valid {
		sess.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	return &sess, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

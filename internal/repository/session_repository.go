package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/printmint/cardpress/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByToken returns the unexpired session for an opaque bearer token, or nil.
// Who minted the session is deliberately not modelled here.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	const query = `
SELECT token, user_id, email, COALESCE(access_token, ''), expires_at
FROM sessions WHERE token = ? AND expires_at > NOW()`
	row := r.db.QueryRowContext(ctx, query, token)
	var s models.Session
	if err := row.Scan(&s.Token, &s.UserID, &s.Email, &s.AccessToken, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// DeleteExpired clears out stale sessions; called opportunistically from the
// server's housekeeping loop.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= NOW()`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return n, nil
}

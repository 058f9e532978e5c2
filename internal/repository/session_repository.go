package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/storefront-api/internal/model"
)

// SessionRepo persists refresh-token sessions. Rows hold only the bcrypt
// hash of the refresh secret. Expired rows are purged by a MySQL event, so
// reads filter on expires_at themselves.
type SessionRepo struct{ db *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = "id, user_id, refresh_token_hash, user_agent, ip, expires_at, created_at"

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip, expires_at) VALUES (?,?,?,?,?,?)",
		s.ID, s.UserID, s.RefreshTokenHash, s.UserAgent, s.IP, s.ExpiresAt.UTC())
	return err
}

// GetActive returns the session with the given id if it has not expired at now.
func (r *SessionRepo) GetActive(ctx context.Context, id string, now time.Time) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? AND expires_at>? LIMIT 1", id, now.UTC())
	return scanSession(row)
}

// GetForUser returns the session with the given id only if it belongs to
// userID, regardless of expiry.
func (r *SessionRepo) GetForUser(ctx context.Context, id string, userID uint64) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? AND user_id=? LIMIT 1", id, userID)
	return scanSession(row)
}

// Delete removes one session. Deleting a missing row is not an error.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id)
	return err
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

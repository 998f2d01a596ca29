// Session row persistence.
package db

import (
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// SaveSession stores the signed-in session, replacing any previous one.
func (r *Repository) SaveSession(s *models.Session) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin session write", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM session"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to clear previous session", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO session (user_id, token, created_at) VALUES (?, ?, ?)",
		s.UserID, s.Token, s.CreatedAt); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to save session", err)
	}
	return tx.Commit()
}

// GetSession returns the current session. Returns sql.ErrNoRows when signed out.
func (r *Repository) GetSession() (*models.Session, error) {
	var s models.Session
	err := r.db.QueryRow(
		"SELECT user_id, token, created_at FROM session LIMIT 1",
	).Scan(&s.UserID, &s.Token, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes the session row.
func (r *Repository) DeleteSession() error {
	_, err := r.db.Exec("DELETE FROM session")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete session", err)
	}
	return nil
}

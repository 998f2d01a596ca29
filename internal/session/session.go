// Package session tracks the signed-in user and wipes the local cache on
// sign-out. The session survives restarts via the store's session row.
package session

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/keepsakehq/keepsake-client/internal/db"
	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/logging"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// Manager holds the current session in memory, backed by the local store.
type Manager struct {
	mu      sync.RWMutex
	repo    *db.Repository
	current *models.Session
}

// NewManager loads any persisted session from the store.
func NewManager(repo *db.Repository) (*Manager, error) {
	m := &Manager{repo: repo}

	s, err := repo.GetSession()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load session", err)
	}
	m.current = s
	return m, nil
}

// SignIn records the authenticated user and token.
func (m *Manager) SignIn(userID models.UUID, token string) error {
	s := &models.Session{UserID: userID, Token: token}
	if err := m.repo.SaveSession(s); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	logging.Info("user signed in", map[string]interface{}{"user_id": string(userID)})
	return nil
}

// SignOut forgets the session and clears every cached row, queued sync
// entries included. Local-only edits that never synced are lost.
func (m *Manager) SignOut() error {
	if err := m.repo.DeleteSession(); err != nil {
		return err
	}
	if err := m.repo.ClearAll(); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	logging.Info("user signed out, local cache cleared")
	return nil
}

// CurrentUserID returns the signed-in user's ID, or ok=false when signed out.
func (m *Manager) CurrentUserID() (models.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.UserID, true
}

// Token returns the bearer token for API calls, or ok=false when signed out.
func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.Token, true
}

// RequireUserID returns the signed-in user's ID or ErrNoSession.
func (m *Manager) RequireUserID() (models.UUID, error) {
	id, ok := m.CurrentUserID()
	if !ok {
		return "", apperrors.New(apperrors.ErrNoSession, "no user is signed in")
	}
	return id, nil
}

// CRUD repository operations for the mirrored entity tables.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// Repository provides CRUD operations for all mirrored tables. It is the
// only component that touches SQL directly; entity repositories and the
// sync engine go through it.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// prepareStmt gets or creates a prepared statement from the cache.
func (r *Repository) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// allTables lists every table wiped on sign-out, dependents first.
var allTables = []string{
	"sync_queue", "comments", "reactions", "notifications",
	"family_members", "stories", "tags", "memories", "users", "session",
}

// ClearAll wipes every entity table, the sync queue, and the session in a
// single transaction. Used on sign-out.
func (r *Repository) ClearAll() error {
	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin wipe", err)
	}
	defer tx.Rollback()

	for _, table := range allTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "failed to wipe table "+table, err)
		}
	}
	return tx.Commit()
}

// SetSyncState updates a record's reconciliation attributes. Only the sync
// engine transitions records to synced; repositories set pending on their
// own writes via Put*.
func (r *Repository) SetSyncState(et models.EntityType, id models.UUID, status models.SyncStatus, lastSyncedAt *int64, lastError string) error {
	table := models.TableFor(et)
	if table == "" {
		return apperrors.New(apperrors.ErrInvalid, "unknown entity type "+string(et))
	}

	query := fmt.Sprintf(
		"UPDATE %s SET sync_status = ?, last_synced_at = COALESCE(?, last_synced_at), last_error = ? WHERE id = ?",
		table)
	result, err := r.db.Exec(query, status, lastSyncedAt, lastError, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update sync state", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s %s not found", et, id))
	}
	return nil
}

// wrapGet maps a single-row read failure to the shared error taxonomy.
// Absence becomes ErrNotFound so callers never see raw sql.ErrNoRows.
func wrapGet(err error, what string, id models.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s %s not found", what, id))
	}
	return apperrors.Wrap(apperrors.ErrDatabase, "failed to read "+what, err)
}

func scanSyncMeta(lastSyncedAt sql.NullInt64, meta *models.SyncMeta) {
	if lastSyncedAt.Valid {
		v := lastSyncedAt.Int64
		meta.LastSyncedAt = &v
	}
}

// =====================================================
// Memory Operations
// =====================================================

// PutMemory upserts a memory by primary key.
func (r *Repository) PutMemory(m *models.Memory) error {
	query := `
	INSERT INTO memories (id, user_id, title, body, mood, visibility, media_url,
		comment_count, reaction_count, created_at, updated_at,
		sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, title = excluded.title, body = excluded.body,
		mood = excluded.mood, visibility = excluded.visibility, media_url = excluded.media_url,
		comment_count = excluded.comment_count, reaction_count = excluded.reaction_count,
		created_at = excluded.created_at, updated_at = excluded.updated_at,
		sync_status = excluded.sync_status, last_synced_at = excluded.last_synced_at,
		last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, m.ID, m.UserID, m.Title, m.Body, m.Mood, m.Visibility,
		m.MediaURL, m.CommentCount, m.ReactionCount, m.CreatedAt, m.UpdatedAt,
		m.SyncStatus, m.LastSyncedAt, m.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write memory", err)
	}
	return nil
}

const memoryColumns = `id, user_id, title, body, mood, visibility, media_url,
	comment_count, reaction_count, created_at, updated_at,
	sync_status, last_synced_at, last_error`

func scanMemory(row interface{ Scan(...interface{}) error }) (*models.Memory, error) {
	var m models.Memory
	var lastSyncedAt sql.NullInt64
	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Body, &m.Mood, &m.Visibility,
		&m.MediaURL, &m.CommentCount, &m.ReactionCount, &m.CreatedAt, &m.UpdatedAt,
		&m.SyncStatus, &lastSyncedAt, &m.LastError)
	if err != nil {
		return nil, err
	}
	scanSyncMeta(lastSyncedAt, &m.SyncMeta)
	return &m, nil
}

// GetMemory retrieves a memory by ID. Returns ErrNotFound when absent.
func (r *Repository) GetMemory(id models.UUID) (*models.Memory, error) {
	stmt, err := r.prepareStmt("SELECT " + memoryColumns + " FROM memories WHERE id = ?")
	if err != nil {
		return nil, err
	}
	m, err := scanMemory(stmt.QueryRow(id))
	if err != nil {
		return nil, wrapGet(err, "memory", id)
	}
	return m, nil
}

// ListMemoriesByUser returns a user's memories, newest first.
func (r *Repository) ListMemoriesByUser(userID models.UUID, limit, offset int) ([]*models.Memory, error) {
	stmt, err := r.prepareStmt("SELECT " + memoryColumns +
		" FROM memories WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(userID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list memories", err)
	}
	defer rows.Close()

	var items []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListMemoriesBySyncStatus returns memories in the given reconciliation
// state, oldest first. Used to surface stuck records to the UI.
func (r *Repository) ListMemoriesBySyncStatus(status models.SyncStatus) ([]*models.Memory, error) {
	rows, err := r.db.Query("SELECT "+memoryColumns+
		" FROM memories WHERE sync_status = ? ORDER BY created_at", status)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list memories by status", err)
	}
	defer rows.Close()

	var items []*models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// DeleteMemory removes a memory from the local store.
func (r *Repository) DeleteMemory(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete memory", err)
	}
	return nil
}

// =====================================================
// User Operations
// =====================================================

// PutUser upserts a user profile mirror.
func (r *Repository) PutUser(u *models.User) error {
	query := `
	INSERT INTO users (id, username, display_name, avatar_url, bio,
		follower_count, following_count, created_at,
		sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		username = excluded.username, display_name = excluded.display_name,
		avatar_url = excluded.avatar_url, bio = excluded.bio,
		follower_count = excluded.follower_count, following_count = excluded.following_count,
		created_at = excluded.created_at, sync_status = excluded.sync_status,
		last_synced_at = excluded.last_synced_at, last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, u.ID, u.Username, u.DisplayName, u.AvatarURL, u.Bio,
		u.FollowerCount, u.FollowingCount, u.CreatedAt,
		u.SyncStatus, u.LastSyncedAt, u.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write user", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns ErrNotFound when absent.
func (r *Repository) GetUser(id models.UUID) (*models.User, error) {
	stmt, err := r.prepareStmt(`SELECT id, username, display_name, avatar_url, bio,
		follower_count, following_count, created_at,
		sync_status, last_synced_at, last_error FROM users WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var u models.User
	var lastSyncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL,
		&u.Bio, &u.FollowerCount, &u.FollowingCount, &u.CreatedAt,
		&u.SyncStatus, &lastSyncedAt, &u.LastError)
	if err != nil {
		return nil, wrapGet(err, "user", id)
	}
	scanSyncMeta(lastSyncedAt, &u.SyncMeta)
	return &u, nil
}

// DeleteUser removes a user mirror from the local store.
func (r *Repository) DeleteUser(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete user", err)
	}
	return nil
}

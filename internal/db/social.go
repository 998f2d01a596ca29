// Comment, reaction, and notification table operations.
package db

import (
	"database/sql"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// =====================================================
// Comment Operations
// =====================================================

// PutComment upserts a comment by primary key.
func (r *Repository) PutComment(c *models.Comment) error {
	query := `
	INSERT INTO comments (id, memory_id, user_id, body, created_at, updated_at,
		sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		memory_id = excluded.memory_id, user_id = excluded.user_id, body = excluded.body,
		created_at = excluded.created_at, updated_at = excluded.updated_at,
		sync_status = excluded.sync_status, last_synced_at = excluded.last_synced_at,
		last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, c.ID, c.MemoryID, c.UserID, c.Body, c.CreatedAt,
		c.UpdatedAt, c.SyncStatus, c.LastSyncedAt, c.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write comment", err)
	}
	return nil
}

const commentColumns = `id, memory_id, user_id, body, created_at, updated_at,
	sync_status, last_synced_at, last_error`

func scanComment(row interface{ Scan(...interface{}) error }) (*models.Comment, error) {
	var c models.Comment
	var lastSyncedAt sql.NullInt64
	err := row.Scan(&c.ID, &c.MemoryID, &c.UserID, &c.Body, &c.CreatedAt,
		&c.UpdatedAt, &c.SyncStatus, &lastSyncedAt, &c.LastError)
	if err != nil {
		return nil, err
	}
	scanSyncMeta(lastSyncedAt, &c.SyncMeta)
	return &c, nil
}

// GetComment retrieves a comment by ID. Returns ErrNotFound when absent.
func (r *Repository) GetComment(id models.UUID) (*models.Comment, error) {
	stmt, err := r.prepareStmt("SELECT " + commentColumns + " FROM comments WHERE id = ?")
	if err != nil {
		return nil, err
	}
	c, err := scanComment(stmt.QueryRow(id))
	if err != nil {
		return nil, wrapGet(err, "comment", id)
	}
	return c, nil
}

// ListCommentsByMemory returns a memory's comments in posting order.
func (r *Repository) ListCommentsByMemory(memoryID models.UUID) ([]*models.Comment, error) {
	stmt, err := r.prepareStmt("SELECT " + commentColumns +
		" FROM comments WHERE memory_id = ? ORDER BY created_at")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(memoryID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list comments", err)
	}
	defer rows.Close()

	var items []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// DeleteComment removes a comment from the local store.
func (r *Repository) DeleteComment(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete comment", err)
	}
	return nil
}

// =====================================================
// Reaction Operations
// =====================================================

// PutReaction upserts a reaction by primary key.
func (r *Repository) PutReaction(re *models.Reaction) error {
	query := `
	INSERT INTO reactions (id, memory_id, user_id, kind, created_at,
		sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		memory_id = excluded.memory_id, user_id = excluded.user_id, kind = excluded.kind,
		created_at = excluded.created_at, sync_status = excluded.sync_status,
		last_synced_at = excluded.last_synced_at, last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, re.ID, re.MemoryID, re.UserID, re.Kind, re.CreatedAt,
		re.SyncStatus, re.LastSyncedAt, re.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write reaction", err)
	}
	return nil
}

// GetReaction retrieves a reaction by ID. Returns ErrNotFound when absent.
func (r *Repository) GetReaction(id models.UUID) (*models.Reaction, error) {
	stmt, err := r.prepareStmt(`SELECT id, memory_id, user_id, kind, created_at,
		sync_status, last_synced_at, last_error FROM reactions WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var re models.Reaction
	var lastSyncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(&re.ID, &re.MemoryID, &re.UserID, &re.Kind,
		&re.CreatedAt, &re.SyncStatus, &lastSyncedAt, &re.LastError)
	if err != nil {
		return nil, wrapGet(err, "reaction", id)
	}
	scanSyncMeta(lastSyncedAt, &re.SyncMeta)
	return &re, nil
}

// ListReactionsByMemory returns a memory's reactions in posting order.
func (r *Repository) ListReactionsByMemory(memoryID models.UUID) ([]*models.Reaction, error) {
	rows, err := r.db.Query(`SELECT id, memory_id, user_id, kind, created_at,
		sync_status, last_synced_at, last_error
		FROM reactions WHERE memory_id = ? ORDER BY created_at`, memoryID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list reactions", err)
	}
	defer rows.Close()

	var items []*models.Reaction
	for rows.Next() {
		var re models.Reaction
		var lastSyncedAt sql.NullInt64
		err := rows.Scan(&re.ID, &re.MemoryID, &re.UserID, &re.Kind, &re.CreatedAt,
			&re.SyncStatus, &lastSyncedAt, &re.LastError)
		if err != nil {
			return nil, err
		}
		scanSyncMeta(lastSyncedAt, &re.SyncMeta)
		items = append(items, &re)
	}
	return items, rows.Err()
}

// DeleteReaction removes a reaction from the local store.
func (r *Repository) DeleteReaction(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM reactions WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete reaction", err)
	}
	return nil
}

// =====================================================
// Notification Operations
// =====================================================

// PutNotification upserts a notification by primary key.
func (r *Repository) PutNotification(n *models.Notification) error {
	query := `
	INSERT INTO notifications (id, user_id, actor_id, memory_id, kind, body,
		read_at, created_at, sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, actor_id = excluded.actor_id,
		memory_id = excluded.memory_id, kind = excluded.kind, body = excluded.body,
		read_at = excluded.read_at, created_at = excluded.created_at,
		sync_status = excluded.sync_status, last_synced_at = excluded.last_synced_at,
		last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, n.ID, n.UserID, n.ActorID, n.MemoryID, n.Kind, n.Body,
		n.ReadAt, n.CreatedAt, n.SyncStatus, n.LastSyncedAt, n.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write notification", err)
	}
	return nil
}

const notificationColumns = `id, user_id, actor_id, memory_id, kind, body,
	read_at, created_at, sync_status, last_synced_at, last_error`

func scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	var n models.Notification
	var readAt, lastSyncedAt sql.NullInt64
	err := row.Scan(&n.ID, &n.UserID, &n.ActorID, &n.MemoryID, &n.Kind, &n.Body,
		&readAt, &n.CreatedAt, &n.SyncStatus, &lastSyncedAt, &n.LastError)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		v := readAt.Int64
		n.ReadAt = &v
	}
	scanSyncMeta(lastSyncedAt, &n.SyncMeta)
	return &n, nil
}

// GetNotification retrieves a notification by ID. Returns ErrNotFound when absent.
func (r *Repository) GetNotification(id models.UUID) (*models.Notification, error) {
	stmt, err := r.prepareStmt("SELECT " + notificationColumns + " FROM notifications WHERE id = ?")
	if err != nil {
		return nil, err
	}
	n, err := scanNotification(stmt.QueryRow(id))
	if err != nil {
		return nil, wrapGet(err, "notification", id)
	}
	return n, nil
}

// ListNotificationsByUser returns a user's notifications, newest first.
func (r *Repository) ListNotificationsByUser(userID models.UUID, limit, offset int) ([]*models.Notification, error) {
	stmt, err := r.prepareStmt("SELECT " + notificationColumns +
		" FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(userID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list notifications", err)
	}
	defer rows.Close()

	var items []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CountUnreadNotifications returns the number of unread notifications for a user.
func (r *Repository) CountUnreadNotifications(userID models.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL", userID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count unread notifications", err)
	}
	return count, nil
}

// DeleteNotification removes a notification from the local store.
func (r *Repository) DeleteNotification(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete notification", err)
	}
	return nil
}

// Family member, story, and tag table operations.
package db

import (
	"database/sql"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// =====================================================
// FamilyMember Operations
// =====================================================

// PutFamilyMember upserts a family member by primary key.
func (r *Repository) PutFamilyMember(f *models.FamilyMember) error {
	query := `
	INSERT INTO family_members (id, user_id, name, relation, avatar_url, linked_id,
		created_at, updated_at, sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, name = excluded.name, relation = excluded.relation,
		avatar_url = excluded.avatar_url, linked_id = excluded.linked_id,
		created_at = excluded.created_at, updated_at = excluded.updated_at,
		sync_status = excluded.sync_status, last_synced_at = excluded.last_synced_at,
		last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, f.ID, f.UserID, f.Name, f.Relation, f.AvatarURL,
		f.LinkedID, f.CreatedAt, f.UpdatedAt, f.SyncStatus, f.LastSyncedAt, f.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write family member", err)
	}
	return nil
}

const familyMemberColumns = `id, user_id, name, relation, avatar_url, linked_id,
	created_at, updated_at, sync_status, last_synced_at, last_error`

func scanFamilyMember(row interface{ Scan(...interface{}) error }) (*models.FamilyMember, error) {
	var f models.FamilyMember
	var lastSyncedAt sql.NullInt64
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Relation, &f.AvatarURL, &f.LinkedID,
		&f.CreatedAt, &f.UpdatedAt, &f.SyncStatus, &lastSyncedAt, &f.LastError)
	if err != nil {
		return nil, err
	}
	scanSyncMeta(lastSyncedAt, &f.SyncMeta)
	return &f, nil
}

// GetFamilyMember retrieves a family member by ID. Returns ErrNotFound when absent.
func (r *Repository) GetFamilyMember(id models.UUID) (*models.FamilyMember, error) {
	stmt, err := r.prepareStmt("SELECT " + familyMemberColumns + " FROM family_members WHERE id = ?")
	if err != nil {
		return nil, err
	}
	f, err := scanFamilyMember(stmt.QueryRow(id))
	if err != nil {
		return nil, wrapGet(err, "family member", id)
	}
	return f, nil
}

// ListFamilyMembersByUser returns a user's family circle ordered by name.
func (r *Repository) ListFamilyMembersByUser(userID models.UUID) ([]*models.FamilyMember, error) {
	rows, err := r.db.Query("SELECT "+familyMemberColumns+
		" FROM family_members WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list family members", err)
	}
	defer rows.Close()

	var items []*models.FamilyMember
	for rows.Next() {
		f, err := scanFamilyMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// DeleteFamilyMember removes a family member from the local store.
func (r *Repository) DeleteFamilyMember(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete family member", err)
	}
	return nil
}

// =====================================================
// Story Operations
// =====================================================

// PutStory upserts a story by primary key.
func (r *Repository) PutStory(s *models.Story) error {
	query := `
	INSERT INTO stories (id, user_id, title, body, memory_ids, status,
		created_at, updated_at, sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, title = excluded.title, body = excluded.body,
		memory_ids = excluded.memory_ids, status = excluded.status,
		created_at = excluded.created_at, updated_at = excluded.updated_at,
		sync_status = excluded.sync_status, last_synced_at = excluded.last_synced_at,
		last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, s.ID, s.UserID, s.Title, s.Body, s.MemoryIDs, s.Status,
		s.CreatedAt, s.UpdatedAt, s.SyncStatus, s.LastSyncedAt, s.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write story", err)
	}
	return nil
}

const storyColumns = `id, user_id, title, body, memory_ids, status,
	created_at, updated_at, sync_status, last_synced_at, last_error`

func scanStory(row interface{ Scan(...interface{}) error }) (*models.Story, error) {
	var s models.Story
	var lastSyncedAt sql.NullInt64
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Body, &s.MemoryIDs, &s.Status,
		&s.CreatedAt, &s.UpdatedAt, &s.SyncStatus, &lastSyncedAt, &s.LastError)
	if err != nil {
		return nil, err
	}
	scanSyncMeta(lastSyncedAt, &s.SyncMeta)
	return &s, nil
}

// GetStory retrieves a story by ID. Returns ErrNotFound when absent.
func (r *Repository) GetStory(id models.UUID) (*models.Story, error) {
	stmt, err := r.prepareStmt("SELECT " + storyColumns + " FROM stories WHERE id = ?")
	if err != nil {
		return nil, err
	}
	s, err := scanStory(stmt.QueryRow(id))
	if err != nil {
		return nil, wrapGet(err, "story", id)
	}
	return s, nil
}

// ListStoriesByUser returns a user's stories, newest first.
func (r *Repository) ListStoriesByUser(userID models.UUID) ([]*models.Story, error) {
	rows, err := r.db.Query("SELECT "+storyColumns+
		" FROM stories WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list stories", err)
	}
	defer rows.Close()

	var items []*models.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// DeleteStory removes a story from the local store.
func (r *Repository) DeleteStory(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM stories WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete story", err)
	}
	return nil
}

// =====================================================
// Tag Operations
// =====================================================

// PutTag upserts a tag by primary key.
func (r *Repository) PutTag(t *models.Tag) error {
	query := `
	INSERT INTO tags (id, user_id, name, color, created_at,
		sync_status, last_synced_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, name = excluded.name, color = excluded.color,
		created_at = excluded.created_at, sync_status = excluded.sync_status,
		last_synced_at = excluded.last_synced_at, last_error = excluded.last_error
	`
	_, err := r.db.Exec(query, t.ID, t.UserID, t.Name, t.Color, t.CreatedAt,
		t.SyncStatus, t.LastSyncedAt, t.LastError)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write tag", err)
	}
	return nil
}

// GetTag retrieves a tag by ID. Returns ErrNotFound when absent.
func (r *Repository) GetTag(id models.UUID) (*models.Tag, error) {
	stmt, err := r.prepareStmt(`SELECT id, user_id, name, color, created_at,
		sync_status, last_synced_at, last_error FROM tags WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var t models.Tag
	var lastSyncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt,
		&t.SyncStatus, &lastSyncedAt, &t.LastError)
	if err != nil {
		return nil, wrapGet(err, "tag", id)
	}
	scanSyncMeta(lastSyncedAt, &t.SyncMeta)
	return &t, nil
}

// ListTagsByUser returns a user's tags ordered by name.
func (r *Repository) ListTagsByUser(userID models.UUID) ([]*models.Tag, error) {
	rows, err := r.db.Query(`SELECT id, user_id, name, color, created_at,
		sync_status, last_synced_at, last_error
		FROM tags WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list tags", err)
	}
	defer rows.Close()

	var items []*models.Tag
	for rows.Next() {
		var t models.Tag
		var lastSyncedAt sql.NullInt64
		err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt,
			&t.SyncStatus, &lastSyncedAt, &t.LastError)
		if err != nil {
			return nil, err
		}
		scanSyncMeta(lastSyncedAt, &t.SyncMeta)
		items = append(items, &t)
	}
	return items, rows.Err()
}

// DeleteTag removes a tag from the local store.
func (r *Repository) DeleteTag(id models.UUID) error {
	_, err := r.db.Exec("DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete tag", err)
	}
	return nil
}

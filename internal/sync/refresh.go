// Background refresh: paged fetches reconciled into the local store.
package sync

import (
	"context"
	"encoding/json"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/live"
	"github.com/keepsakehq/keepsake-client/internal/logging"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// refreshOrder lists the entity types pulled by RefreshAll. Memories come
// before their dependents so the UI never shows a comment whose memory has
// not arrived yet.
var refreshOrder = []models.EntityType{
	models.EntityUser,
	models.EntityMemory,
	models.EntityComment,
	models.EntityReaction,
	models.EntityNotification,
	models.EntityFamilyMember,
	models.EntityStory,
	models.EntityTag,
}

// Refresh pulls every page of one entity collection and reconciles it.
// The server wins for each record unless the local copy is pending or in
// error; those hold unsynced edits and are left alone until drained.
// Returns the number of records applied.
func (e *Engine) Refresh(ctx context.Context, et models.EntityType) (int, error) {
	applied := 0
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		page, err := e.api.Fetch(ctx, et, cursor, e.cfg.PageSize)
		if err != nil {
			return applied, err
		}

		for _, raw := range page.Records {
			ok, err := e.reconcileRemote(et, raw)
			if err != nil {
				logging.Warn("skipping unreconcilable record", map[string]interface{}{
					"entity_type": string(et), "error": err.Error(),
				})
				continue
			}
			if ok {
				applied++
			}
		}

		if page.NextCursor == "" {
			return applied, nil
		}
		cursor = page.NextCursor
	}
}

// RefreshAll refreshes every mirrored collection. It keeps going past
// per-collection failures and returns the first error encountered.
func (e *Engine) RefreshAll(ctx context.Context) (int, error) {
	total := 0
	var firstErr error
	for _, et := range refreshOrder {
		n, err := e.Refresh(ctx, et)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return total, firstErr
}

// reconcileRemote applies one server record. Reports false when the local
// copy holds unsynced edits and was preserved.
func (e *Engine) reconcileRemote(et models.EntityType, raw json.RawMessage) (bool, error) {
	var header struct {
		ID models.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &header); err != nil || header.ID == "" {
		return false, apperrors.New(apperrors.ErrSyncFailed, "record without an id")
	}

	status, exists, err := e.localSyncStatus(et, header.ID)
	if err != nil {
		return false, err
	}
	if exists && status != models.SyncStatusSynced {
		return false, nil
	}

	if err := e.applyServerRecord(et, raw, e.now().Unix()); err != nil {
		return false, err
	}
	return true, nil
}

// localSyncStatus looks up the sync status of the local copy, if any.
func (e *Engine) localSyncStatus(et models.EntityType, id models.UUID) (models.SyncStatus, bool, error) {
	var meta *models.SyncMeta
	var err error

	switch et {
	case models.EntityMemory:
		var m *models.Memory
		if m, err = e.store.GetMemory(id); err == nil {
			meta = &m.SyncMeta
		}
	case models.EntityUser:
		var u *models.User
		if u, err = e.store.GetUser(id); err == nil {
			meta = &u.SyncMeta
		}
	case models.EntityComment:
		var c *models.Comment
		if c, err = e.store.GetComment(id); err == nil {
			meta = &c.SyncMeta
		}
	case models.EntityReaction:
		var re *models.Reaction
		if re, err = e.store.GetReaction(id); err == nil {
			meta = &re.SyncMeta
		}
	case models.EntityNotification:
		var n *models.Notification
		if n, err = e.store.GetNotification(id); err == nil {
			meta = &n.SyncMeta
		}
	case models.EntityFamilyMember:
		var f *models.FamilyMember
		if f, err = e.store.GetFamilyMember(id); err == nil {
			meta = &f.SyncMeta
		}
	case models.EntityStory:
		var s *models.Story
		if s, err = e.store.GetStory(id); err == nil {
			meta = &s.SyncMeta
		}
	case models.EntityTag:
		var tg *models.Tag
		if tg, err = e.store.GetTag(id); err == nil {
			meta = &tg.SyncMeta
		}
	default:
		return "", false, apperrors.New(apperrors.ErrInternal, "unknown entity type "+string(et))
	}

	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return meta.SyncStatus, true, nil
}

// applyServerRecord upserts the server's canonical record as synced and
// notifies live queries.
func (e *Engine) applyServerRecord(et models.EntityType, raw json.RawMessage, now int64) error {
	var id models.UUID
	var err error

	switch et {
	case models.EntityMemory:
		var m models.Memory
		if err = json.Unmarshal(raw, &m); err == nil && m.ID != "" {
			m.MarkSynced(now)
			if err = e.store.PutMemory(&m); err == nil {
				id = m.ID
			}
		}
	case models.EntityUser:
		var u models.User
		if err = json.Unmarshal(raw, &u); err == nil && u.ID != "" {
			u.MarkSynced(now)
			if err = e.store.PutUser(&u); err == nil {
				id = u.ID
			}
		}
	case models.EntityComment:
		var c models.Comment
		if err = json.Unmarshal(raw, &c); err == nil && c.ID != "" {
			c.MarkSynced(now)
			if err = e.store.PutComment(&c); err == nil {
				id = c.ID
			}
		}
	case models.EntityReaction:
		var re models.Reaction
		if err = json.Unmarshal(raw, &re); err == nil && re.ID != "" {
			re.MarkSynced(now)
			if err = e.store.PutReaction(&re); err == nil {
				id = re.ID
			}
		}
	case models.EntityNotification:
		var n models.Notification
		if err = json.Unmarshal(raw, &n); err == nil && n.ID != "" {
			n.MarkSynced(now)
			if err = e.store.PutNotification(&n); err == nil {
				id = n.ID
			}
		}
	case models.EntityFamilyMember:
		var f models.FamilyMember
		if err = json.Unmarshal(raw, &f); err == nil && f.ID != "" {
			f.MarkSynced(now)
			if err = e.store.PutFamilyMember(&f); err == nil {
				id = f.ID
			}
		}
	case models.EntityStory:
		var s models.Story
		if err = json.Unmarshal(raw, &s); err == nil && s.ID != "" {
			s.MarkSynced(now)
			if err = e.store.PutStory(&s); err == nil {
				id = s.ID
			}
		}
	case models.EntityTag:
		var tg models.Tag
		if err = json.Unmarshal(raw, &tg); err == nil && tg.ID != "" {
			tg.MarkSynced(now)
			if err = e.store.PutTag(&tg); err == nil {
				id = tg.ID
			}
		}
	default:
		return apperrors.New(apperrors.ErrInternal, "unknown entity type "+string(et))
	}

	if err != nil {
		return err
	}
	if id == "" {
		return apperrors.New(apperrors.ErrSyncFailed, "server record without an id")
	}

	e.bus.Publish(live.Change{Table: models.TableFor(et), Op: live.OpPut, ID: string(id)})
	return nil
}

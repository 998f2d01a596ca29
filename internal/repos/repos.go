// Package repos provides the entity repositories: the only sanctioned write
// path into the local store for application code. Every mutation writes
// through to the store optimistically, appends a sync queue entry, and
// publishes a change event before any network activity happens.
package repos

import (
	"encoding/json"

	"github.com/keepsakehq/keepsake-client/internal/db"
	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/live"
	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/session"
)

// Repos bundles one repository per entity over a shared store, change bus,
// and session context.
type Repos struct {
	Memories      *MemoryRepo
	Comments      *CommentRepo
	Reactions     *ReactionRepo
	Notifications *NotificationRepo
	Family        *FamilyRepo
	Stories       *StoryRepo
	Tags          *TagRepo
	Users         *UserRepo
}

// New wires every entity repository.
func New(store *db.Repository, bus *live.Bus, sessions *session.Manager) *Repos {
	b := &base{store: store, bus: bus, sessions: sessions}
	return &Repos{
		Memories:      &MemoryRepo{b},
		Comments:      &CommentRepo{b},
		Reactions:     &ReactionRepo{b},
		Notifications: &NotificationRepo{b},
		Family:        &FamilyRepo{b},
		Stories:       &StoryRepo{b},
		Tags:          &TagRepo{b},
		Users:         &UserRepo{b},
	}
}

type base struct {
	store    *db.Repository
	bus      *live.Bus
	sessions *session.Manager
}

// enqueue appends a mutation to the sync queue with the record's current
// JSON snapshot as payload.
func (b *base) enqueue(op string, et models.EntityType, id models.UUID, record interface{}) error {
	var payload json.RawMessage
	if record != nil {
		data, err := json.Marshal(record)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to encode sync payload", err)
		}
		payload = data
	}
	return b.store.AppendQueueEntry(&models.SyncQueueEntry{
		Operation:  op,
		EntityType: et,
		EntityID:   id,
		Payload:    payload,
	})
}

// scheduleDelete enqueues a delete, or cancels outstanding queue entries
// when the entity only ever existed locally. A create still sitting in the
// queue means the server has never heard of this id; dropping the queued
// entries makes the whole lifecycle net to zero network calls. A create
// already in flight may have reached the server, so the delete is sent.
func (b *base) scheduleDelete(et models.EntityType, id models.UUID) error {
	entries, err := b.store.QueueEntriesForEntity(et, id)
	if err != nil {
		return err
	}

	localOnly := false
	for _, e := range entries {
		if e.Operation == models.OpCreate && e.Status != models.EntryStatusInFlight {
			localOnly = true
			break
		}
	}

	if localOnly {
		_, err := b.store.DeleteQueueEntriesForEntity(et, id)
		return err
	}
	return b.enqueue(models.OpDelete, et, id, nil)
}

func (b *base) publishPut(table string, id models.UUID) {
	b.bus.Publish(live.Change{Table: table, Op: live.OpPut, ID: string(id)})
}

func (b *base) publishDelete(table string, id models.UUID) {
	b.bus.Publish(live.Change{Table: table, Op: live.OpDelete, ID: string(id)})
}

// CurrentUserID exposes the session context the repositories scope their
// queries by. ok is false when signed out.
func (r *Repos) CurrentUserID() (models.UUID, bool) {
	return r.Memories.sessions.CurrentUserID()
}

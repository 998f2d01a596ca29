package repos

import (
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/uuid"
)

// MemoryRepo is the write path for journal entries.
type MemoryRepo struct {
	*base
}

// Create assigns a client-generated id, writes the memory locally as
// pending, and queues a create for the sync engine. Returns immediately;
// the network is never touched here.
func (r *MemoryRepo) Create(m *models.Memory) (*models.Memory, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if m.Title == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "memory title is required")
	}

	if m.ID == "" {
		m.ID = models.UUID(uuid.New())
	}
	m.UserID = userID
	if m.Visibility == "" {
		m.Visibility = "private"
	}
	now := time.Now().Unix()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutMemory(m); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityMemory, m.ID, m); err != nil {
		return nil, err
	}
	r.publishPut(m.TableName(), m.ID)
	return m, nil
}

// Update merges a patch into the stored memory, marks it pending, and
// queues an update. The record must already exist locally.
func (r *MemoryRepo) Update(id models.UUID, patch func(*models.Memory)) (*models.Memory, error) {
	m, err := r.store.GetMemory(id)
	if err != nil {
		return nil, err
	}

	patch(m)
	m.ID = id
	m.Touch()
	m.SyncStatus = models.SyncStatusPending
	m.LastError = ""

	if err := r.store.PutMemory(m); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityMemory, m.ID, m); err != nil {
		return nil, err
	}
	r.publishPut(m.TableName(), m.ID)
	return m, nil
}

// Delete removes the memory locally right away and schedules the server
// delete. A memory that never synced is cancelled in the queue instead.
func (r *MemoryRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteMemory(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityMemory, id); err != nil {
		return err
	}
	r.publishDelete(models.Memory{}.TableName(), id)
	return nil
}

// Get returns one memory by id.
func (r *MemoryRepo) Get(id models.UUID) (*models.Memory, error) {
	return r.store.GetMemory(id)
}

// List returns the signed-in user's memories, newest first.
func (r *MemoryRepo) List(limit, offset int) ([]*models.Memory, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return nil, nil
	}
	return r.store.ListMemoriesByUser(userID, limit, offset)
}

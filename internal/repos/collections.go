package repos

import (
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/uuid"
)

// FamilyRepo is the write path for family circle members.
type FamilyRepo struct {
	*base
}

// Create writes a family member as pending and queues its create.
func (r *FamilyRepo) Create(f *models.FamilyMember) (*models.FamilyMember, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "family member name is required")
	}

	if f.ID == "" {
		f.ID = models.UUID(uuid.New())
	}
	f.UserID = userID
	now := time.Now().Unix()
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	f.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutFamilyMember(f); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityFamilyMember, f.ID, f); err != nil {
		return nil, err
	}
	r.publishPut(f.TableName(), f.ID)
	return f, nil
}

// Update merges a patch into the stored family member and queues an update.
func (r *FamilyRepo) Update(id models.UUID, patch func(*models.FamilyMember)) (*models.FamilyMember, error) {
	f, err := r.store.GetFamilyMember(id)
	if err != nil {
		return nil, err
	}

	patch(f)
	f.ID = id
	f.Touch()
	f.SyncStatus = models.SyncStatusPending
	f.LastError = ""

	if err := r.store.PutFamilyMember(f); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityFamilyMember, f.ID, f); err != nil {
		return nil, err
	}
	r.publishPut(f.TableName(), f.ID)
	return f, nil
}

// Delete removes the family member locally and schedules the server delete.
func (r *FamilyRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteFamilyMember(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityFamilyMember, id); err != nil {
		return err
	}
	r.publishDelete(models.FamilyMember{}.TableName(), id)
	return nil
}

// List returns the signed-in user's family circle, ordered by name.
func (r *FamilyRepo) List() ([]*models.FamilyMember, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return nil, nil
	}
	return r.store.ListFamilyMembersByUser(userID)
}

// StoryRepo is the write path for stories. Story bodies are generated
// server-side; locally a user drafts the memory selection and edits titles.
type StoryRepo struct {
	*base
}

// Create writes a story draft as pending and queues its create.
func (r *StoryRepo) Create(s *models.Story) (*models.Story, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if s.Title == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "story title is required")
	}

	if s.ID == "" {
		s.ID = models.UUID(uuid.New())
	}
	s.UserID = userID
	if s.Status == "" {
		s.Status = "draft"
	}
	if s.MemoryIDs == "" {
		s.MemoryIDs = "[]"
	}
	now := time.Now().Unix()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutStory(s); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityStory, s.ID, s); err != nil {
		return nil, err
	}
	r.publishPut(s.TableName(), s.ID)
	return s, nil
}

// Update merges a patch into the stored story and queues an update.
func (r *StoryRepo) Update(id models.UUID, patch func(*models.Story)) (*models.Story, error) {
	s, err := r.store.GetStory(id)
	if err != nil {
		return nil, err
	}

	patch(s)
	s.ID = id
	s.Touch()
	s.SyncStatus = models.SyncStatusPending
	s.LastError = ""

	if err := r.store.PutStory(s); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityStory, s.ID, s); err != nil {
		return nil, err
	}
	r.publishPut(s.TableName(), s.ID)
	return s, nil
}

// Delete removes the story locally and schedules the server delete.
func (r *StoryRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteStory(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityStory, id); err != nil {
		return err
	}
	r.publishDelete(models.Story{}.TableName(), id)
	return nil
}

// List returns the signed-in user's stories, newest first.
func (r *StoryRepo) List() ([]*models.Story, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return nil, nil
	}
	return r.store.ListStoriesByUser(userID)
}

// TagRepo is the write path for tags.
type TagRepo struct {
	*base
}

// Create writes a tag as pending and queues its create.
func (r *TagRepo) Create(t *models.Tag) (*models.Tag, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if t.Name == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "tag name is required")
	}

	if t.ID == "" {
		t.ID = models.UUID(uuid.New())
	}
	t.UserID = userID
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	t.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutTag(t); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityTag, t.ID, t); err != nil {
		return nil, err
	}
	r.publishPut(t.TableName(), t.ID)
	return t, nil
}

// Update merges a patch into the stored tag and queues an update.
func (r *TagRepo) Update(id models.UUID, patch func(*models.Tag)) (*models.Tag, error) {
	t, err := r.store.GetTag(id)
	if err != nil {
		return nil, err
	}

	patch(t)
	t.ID = id
	t.SyncStatus = models.SyncStatusPending
	t.LastError = ""

	if err := r.store.PutTag(t); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityTag, t.ID, t); err != nil {
		return nil, err
	}
	r.publishPut(t.TableName(), t.ID)
	return t, nil
}

// Delete removes the tag locally and schedules the server delete.
func (r *TagRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteTag(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityTag, id); err != nil {
		return err
	}
	r.publishDelete(models.Tag{}.TableName(), id)
	return nil
}

// List returns the signed-in user's tags, ordered by name.
func (r *TagRepo) List() ([]*models.Tag, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return nil, nil
	}
	return r.store.ListTagsByUser(userID)
}

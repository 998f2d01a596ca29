package repos

import (
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/uuid"
)

// CommentRepo is the write path for comments on memories.
type CommentRepo struct {
	*base
}

// Create writes a comment as pending and queues its create.
func (r *CommentRepo) Create(c *models.Comment) (*models.Comment, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if c.MemoryID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "comment needs a memory id")
	}
	if c.Body == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "comment body is required")
	}

	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	c.UserID = userID
	now := time.Now().Unix()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutComment(c); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityComment, c.ID, c); err != nil {
		return nil, err
	}
	r.publishPut(c.TableName(), c.ID)
	return c, nil
}

// Update merges a patch into the stored comment and queues an update.
func (r *CommentRepo) Update(id models.UUID, patch func(*models.Comment)) (*models.Comment, error) {
	c, err := r.store.GetComment(id)
	if err != nil {
		return nil, err
	}

	patch(c)
	c.ID = id
	c.Touch()
	c.SyncStatus = models.SyncStatusPending
	c.LastError = ""

	if err := r.store.PutComment(c); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityComment, c.ID, c); err != nil {
		return nil, err
	}
	r.publishPut(c.TableName(), c.ID)
	return c, nil
}

// Delete removes the comment locally and schedules the server delete.
func (r *CommentRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteComment(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityComment, id); err != nil {
		return err
	}
	r.publishDelete(models.Comment{}.TableName(), id)
	return nil
}

// ListByMemory returns a memory's comments, oldest first.
func (r *CommentRepo) ListByMemory(memoryID models.UUID) ([]*models.Comment, error) {
	return r.store.ListCommentsByMemory(memoryID)
}

// ReactionRepo is the write path for emoji reactions. Reactions are
// immutable; there is no update.
type ReactionRepo struct {
	*base
}

// Create writes a reaction as pending and queues its create.
func (r *ReactionRepo) Create(re *models.Reaction) (*models.Reaction, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	if re.MemoryID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "reaction needs a memory id")
	}
	if re.Kind == "" {
		re.Kind = "heart"
	}

	if re.ID == "" {
		re.ID = models.UUID(uuid.New())
	}
	re.UserID = userID
	if re.CreatedAt == 0 {
		re.CreatedAt = time.Now().Unix()
	}
	re.SyncMeta = models.SyncMeta{SyncStatus: models.SyncStatusPending}

	if err := r.store.PutReaction(re); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpCreate, models.EntityReaction, re.ID, re); err != nil {
		return nil, err
	}
	r.publishPut(re.TableName(), re.ID)
	return re, nil
}

// Delete removes the reaction locally and schedules the server delete.
func (r *ReactionRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteReaction(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityReaction, id); err != nil {
		return err
	}
	r.publishDelete(models.Reaction{}.TableName(), id)
	return nil
}

// ListByMemory returns a memory's reactions, oldest first.
func (r *ReactionRepo) ListByMemory(memoryID models.UUID) ([]*models.Reaction, error) {
	return r.store.ListReactionsByMemory(memoryID)
}

// NotificationRepo reads server-produced notifications and syncs back the
// one local mutation they support, mark-as-read.
type NotificationRepo struct {
	*base
}

// MarkRead stamps the notification read and queues an update.
func (r *NotificationRepo) MarkRead(id models.UUID) (*models.Notification, error) {
	n, err := r.store.GetNotification(id)
	if err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return n, nil
	}

	now := time.Now().Unix()
	n.ReadAt = &now
	n.SyncStatus = models.SyncStatusPending
	n.LastError = ""

	if err := r.store.PutNotification(n); err != nil {
		return nil, err
	}
	if err := r.enqueue(models.OpUpdate, models.EntityNotification, n.ID, n); err != nil {
		return nil, err
	}
	r.publishPut(n.TableName(), n.ID)
	return n, nil
}

// Delete removes the notification locally and schedules the server delete.
func (r *NotificationRepo) Delete(id models.UUID) error {
	if err := r.store.DeleteNotification(id); err != nil {
		return err
	}
	if err := r.scheduleDelete(models.EntityNotification, id); err != nil {
		return err
	}
	r.publishDelete(models.Notification{}.TableName(), id)
	return nil
}

// List returns the signed-in user's notifications, newest first.
func (r *NotificationRepo) List(limit, offset int) ([]*models.Notification, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return nil, nil
	}
	return r.store.ListNotificationsByUser(userID, limit, offset)
}

// UnreadCount returns how many of the signed-in user's notifications are
// unread.
func (r *NotificationRepo) UnreadCount() (int, error) {
	userID, ok := r.sessions.CurrentUserID()
	if !ok {
		return 0, nil
	}
	return r.store.CountUnreadNotifications(userID)
}

// UserRepo is a read-mostly mirror of server profiles. Profiles arrive via
// background refresh; there is no local create or delete.
type UserRepo struct {
	*base
}

// Get returns one profile by id.
func (r *UserRepo) Get(id models.UUID) (*models.User, error) {
	return r.store.GetUser(id)
}

// Current returns the signed-in user's own profile, if mirrored locally.
func (r *UserRepo) Current() (*models.User, error) {
	userID, err := r.sessions.RequireUserID()
	if err != nil {
		return nil, err
	}
	return r.store.GetUser(userID)
}

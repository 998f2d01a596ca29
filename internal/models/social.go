package models

import "time"

// Comment represents a comment left on a memory.
type Comment struct {
	ID        UUID   `db:"id" json:"id"`
	MemoryID  UUID   `db:"memory_id" json:"memory_id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Body      string `db:"body" json:"body"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`

	SyncMeta
}

// TableName returns the table name for Comment.
func (Comment) TableName() string {
	return "comments"
}

// Touch updates the UpdatedAt timestamp.
func (c *Comment) Touch() {
	c.UpdatedAt = time.Now().Unix()
}

// Reaction represents an emoji reaction on a memory.
type Reaction struct {
	ID        UUID   `db:"id" json:"id"`
	MemoryID  UUID   `db:"memory_id" json:"memory_id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Kind      string `db:"kind" json:"kind"` // heart, smile, laugh, wow, sad
	CreatedAt int64  `db:"created_at" json:"created_at"`

	SyncMeta
}

// TableName returns the table name for Reaction.
func (Reaction) TableName() string {
	return "reactions"
}

// Notification represents an in-app notification for the current user.
// Mark-as-read is a local mutation synced back as an update.
type Notification struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	ActorID   UUID   `db:"actor_id" json:"actor_id,omitempty"`
	MemoryID  UUID   `db:"memory_id" json:"memory_id,omitempty"`
	Kind      string `db:"kind" json:"kind"` // follow, comment, reaction, story_ready
	Body      string `db:"body" json:"body"`
	ReadAt    *int64 `db:"read_at" json:"read_at,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`

	SyncMeta
}

// TableName returns the table name for Notification.
func (Notification) TableName() string {
	return "notifications"
}

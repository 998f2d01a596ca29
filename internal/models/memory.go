package models

import "time"

// Memory represents a journal entry captured by a user.
//
// CommentCount and ReactionCount are server-derived; the sync engine
// overwrites them from server responses during reconciliation.
type Memory struct {
	ID            UUID   `db:"id" json:"id"`
	UserID        UUID   `db:"user_id" json:"user_id"`
	Title         string `db:"title" json:"title"`
	Body          string `db:"body" json:"body"`
	Mood          string `db:"mood" json:"mood,omitempty"`
	Visibility    string `db:"visibility" json:"visibility"` // private, family, public
	MediaURL      string `db:"media_url" json:"media_url,omitempty"`
	CommentCount  int    `db:"comment_count" json:"comment_count"`
	ReactionCount int    `db:"reaction_count" json:"reaction_count"`
	CreatedAt     int64  `db:"created_at" json:"created_at"`
	UpdatedAt     int64  `db:"updated_at" json:"updated_at"`

	SyncMeta
}

// TableName returns the table name for Memory.
func (Memory) TableName() string {
	return "memories"
}

// Touch updates the UpdatedAt timestamp.
func (m *Memory) Touch() {
	m.UpdatedAt = time.Now().Unix()
}

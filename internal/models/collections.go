package models

import "time"

// FamilyMember represents a person in the user's family circle.
type FamilyMember struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Name      string `db:"name" json:"name"`
	Relation  string `db:"relation" json:"relation"` // parent, sibling, child, ...
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
	LinkedID  UUID   `db:"linked_id" json:"linked_id,omitempty"` // linked account, if any
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`

	SyncMeta
}

// TableName returns the table name for FamilyMember.
func (FamilyMember) TableName() string {
	return "family_members"
}

// Touch updates the UpdatedAt timestamp.
func (f *FamilyMember) Touch() {
	f.UpdatedAt = time.Now().Unix()
}

// Story represents a generated narrative stitched from a set of memories.
// Generation happens server-side; the local copy mirrors the result and
// tracks title edits made offline.
type Story struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Title     string `db:"title" json:"title"`
	Body      string `db:"body" json:"body"`
	MemoryIDs string `db:"memory_ids" json:"memory_ids"` // JSON array of memory UUIDs
	Status    string `db:"status" json:"status"`         // draft, generating, ready
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`

	SyncMeta
}

// TableName returns the table name for Story.
func (Story) TableName() string {
	return "stories"
}

// Touch updates the UpdatedAt timestamp.
func (s *Story) Touch() {
	s.UpdatedAt = time.Now().Unix()
}

// Tag represents a user-defined label attached to memories.
type Tag struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Name      string `db:"name" json:"name"`
	Color     string `db:"color" json:"color,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`

	SyncMeta
}

// TableName returns the table name for Tag.
func (Tag) TableName() string {
	return "tags"
}

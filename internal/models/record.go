// Package models provides data model definitions for the Keepsake client core.
package models

import (
	"database/sql/driver"
	"fmt"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus marks the reconciliation state of a local record.
type SyncStatus string

const (
	// SyncStatusSynced means the local copy matches the last known server state.
	SyncStatusSynced SyncStatus = "synced"

	// SyncStatusPending means a local mutation has not yet been confirmed
	// by the server.
	SyncStatusPending SyncStatus = "pending"

	// SyncStatusError means the last sync attempt for this record failed.
	SyncStatusError SyncStatus = "error"
)

// SyncMeta holds the synchronization attributes carried by every local record.
type SyncMeta struct {
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastSyncedAt *int64     `db:"last_synced_at" json:"last_synced_at,omitempty"`
	LastError    string     `db:"last_error" json:"last_error,omitempty"`
}

// MarkSynced records a successful reconciliation at the given unix time.
func (m *SyncMeta) MarkSynced(now int64) {
	m.SyncStatus = SyncStatusSynced
	m.LastSyncedAt = &now
	m.LastError = ""
}

// MarkError records a failed reconciliation with its reason.
func (m *SyncMeta) MarkError(reason string) {
	m.SyncStatus = SyncStatusError
	m.LastError = reason
}

// EntityType identifies one of the mirrored server entity tables.
type EntityType string

const (
	EntityMemory       EntityType = "memory"
	EntityUser         EntityType = "user"
	EntityComment      EntityType = "comment"
	EntityReaction     EntityType = "reaction"
	EntityNotification EntityType = "notification"
	EntityFamilyMember EntityType = "family_member"
	EntityStory        EntityType = "story"
	EntityTag          EntityType = "tag"
)

// TableFor returns the local table name that mirrors the entity type.
func TableFor(et EntityType) string {
	switch et {
	case EntityMemory:
		return "memories"
	case EntityUser:
		return "users"
	case EntityComment:
		return "comments"
	case EntityReaction:
		return "reactions"
	case EntityNotification:
		return "notifications"
	case EntityFamilyMember:
		return "family_members"
	case EntityStory:
		return "stories"
	case EntityTag:
		return "tags"
	}
	return ""
}

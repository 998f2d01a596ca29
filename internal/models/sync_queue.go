package models

import "encoding/json"

// Queue operation kinds.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Queue entry states.
const (
	EntryStatusQueued   = "queued"
	EntryStatusInFlight = "in_flight"
	EntryStatusError    = "error"
)

// SyncQueueEntry represents one pending mutation awaiting reconciliation
// with the server. Entries are drained in Seq order; Seq is assigned by
// the local store on insert and is monotonic.
type SyncQueueEntry struct {
	Seq         int64           `db:"seq" json:"seq"`
	Operation   string          `db:"operation" json:"operation"` // create, update, delete
	EntityType  EntityType      `db:"entity_type" json:"entity_type"`
	EntityID    UUID            `db:"entity_id" json:"entity_id"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
	Status      string          `db:"status" json:"status"` // queued, in_flight, error
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for SyncQueueEntry.
func (SyncQueueEntry) TableName() string {
	return "sync_queue"
}

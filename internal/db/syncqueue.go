// Sync queue persistence. Entries survive process restarts and are drained
// in seq order by the sync engine.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// AppendQueueEntry inserts a new queued mutation and assigns its sequence id.
func (r *Repository) AppendQueueEntry(e *models.SyncQueueEntry) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.Status == "" {
		e.Status = models.EntryStatusQueued
	}

	query := `
	INSERT INTO sync_queue (operation, entity_type, entity_id, payload,
		retry_count, next_retry_at, status, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query, e.Operation, e.EntityType, e.EntityID,
		string(e.Payload), e.RetryCount, e.NextRetryAt, e.Status, e.LastError, e.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append queue entry", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue sequence", err)
	}
	e.Seq = seq
	return nil
}

const queueColumns = `seq, operation, entity_type, entity_id, payload,
	retry_count, next_retry_at, status, last_error, created_at`

func scanQueueEntry(row interface{ Scan(...interface{}) error }) (*models.SyncQueueEntry, error) {
	var e models.SyncQueueEntry
	var payload string
	err := row.Scan(&e.Seq, &e.Operation, &e.EntityType, &e.EntityID, &payload,
		&e.RetryCount, &e.NextRetryAt, &e.Status, &e.LastError, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if payload != "" {
		e.Payload = []byte(payload)
	}
	return &e, nil
}

func (r *Repository) queryQueue(query string, args ...interface{}) ([]*models.SyncQueueEntry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to query sync queue", err)
	}
	defer rows.Close()

	var entries []*models.SyncQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetQueueEntry retrieves one entry by sequence id. Returns sql.ErrNoRows when absent.
func (r *Repository) GetQueueEntry(seq int64) (*models.SyncQueueEntry, error) {
	return scanQueueEntry(r.db.QueryRow(
		"SELECT "+queueColumns+" FROM sync_queue WHERE seq = ?", seq))
}

// AllQueueEntries returns every entry in seq order, regardless of status.
func (r *Repository) AllQueueEntries() ([]*models.SyncQueueEntry, error) {
	return r.queryQueue("SELECT " + queueColumns + " FROM sync_queue ORDER BY seq")
}

// ReadyQueueEntries returns queued entries whose backoff window has elapsed,
// in seq order.
func (r *Repository) ReadyQueueEntries(now int64) ([]*models.SyncQueueEntry, error) {
	return r.queryQueue("SELECT "+queueColumns+
		" FROM sync_queue WHERE status = ? AND next_retry_at <= ? ORDER BY seq",
		models.EntryStatusQueued, now)
}

// QueueEntriesForEntity returns all entries targeting one entity, in seq order.
func (r *Repository) QueueEntriesForEntity(et models.EntityType, id models.UUID) ([]*models.SyncQueueEntry, error) {
	return r.queryQueue("SELECT "+queueColumns+
		" FROM sync_queue WHERE entity_type = ? AND entity_id = ? ORDER BY seq", et, id)
}

// DeleteQueueEntry removes an entry after successful acknowledgment or
// coalescing.
func (r *Repository) DeleteQueueEntry(seq int64) error {
	_, err := r.db.Exec("DELETE FROM sync_queue WHERE seq = ?", seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete queue entry", err)
	}
	return nil
}

// DeleteQueueEntriesForEntity removes every pending entry targeting one
// entity. Used when a never-synced create is deleted locally.
func (r *Repository) DeleteQueueEntriesForEntity(et models.EntityType, id models.UUID) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?", et, id)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to cancel queue entries", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// MarkQueueEntryInFlight transitions an entry to in_flight before dispatch.
func (r *Repository) MarkQueueEntryInFlight(seq int64) error {
	return r.setQueueStatus(seq, models.EntryStatusInFlight)
}

// RequeueInFlightEntries returns every in_flight entry to queued. An entry
// stays in_flight only while a dispatch is outstanding, so any found
// outside a drain was orphaned by a crash mid-request and must be retried.
func (r *Repository) RequeueInFlightEntries() (int64, error) {
	result, err := r.db.Exec("UPDATE sync_queue SET status = ? WHERE status = ?",
		models.EntryStatusQueued, models.EntryStatusInFlight)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to requeue in-flight entries", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// FailQueueEntry records a transient failure: the entry returns to queued
// with an incremented retry count and a backoff deadline.
func (r *Repository) FailQueueEntry(seq int64, retryCount int, nextRetryAt int64, lastError string) error {
	result, err := r.db.Exec(`UPDATE sync_queue
		SET status = ?, retry_count = ?, next_retry_at = ?, last_error = ?
		WHERE seq = ?`,
		models.EntryStatusQueued, retryCount, nextRetryAt, lastError, seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to record queue failure", err)
	}
	return r.checkQueueRow(result, seq)
}

// UpdateQueuePayload replaces an entry's payload in place, keeping its
// seq position. Used when coalescing folds a later snapshot into an
// earlier surviving entry.
func (r *Repository) UpdateQueuePayload(seq int64, payload json.RawMessage) error {
	result, err := r.db.Exec(
		"UPDATE sync_queue SET payload = ? WHERE seq = ?", string(payload), seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update queue payload", err)
	}
	return r.checkQueueRow(result, seq)
}

// AbandonQueueEntry moves an entry to error state. The entry is retained
// for the UI until manually retried or its entity is removed.
func (r *Repository) AbandonQueueEntry(seq int64, lastError string) error {
	result, err := r.db.Exec(
		"UPDATE sync_queue SET status = ?, last_error = ? WHERE seq = ?",
		models.EntryStatusError, lastError, seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to abandon queue entry", err)
	}
	return r.checkQueueRow(result, seq)
}

// ResetQueueEntry re-arms a failed entry for a manual retry.
func (r *Repository) ResetQueueEntry(seq int64) error {
	result, err := r.db.Exec(`UPDATE sync_queue
		SET status = ?, retry_count = 0, next_retry_at = 0, last_error = ''
		WHERE seq = ?`,
		models.EntryStatusQueued, seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to reset queue entry", err)
	}
	return r.checkQueueRow(result, seq)
}

// PendingQueueCount returns the number of entries not yet acknowledged,
// including those parked in error state.
func (r *Repository) PendingQueueCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue entries", err)
	}
	return count, nil
}

// FailedQueueEntries returns entries parked in error state, in seq order.
func (r *Repository) FailedQueueEntries() ([]*models.SyncQueueEntry, error) {
	return r.queryQueue("SELECT "+queueColumns+
		" FROM sync_queue WHERE status = ? ORDER BY seq", models.EntryStatusError)
}

func (r *Repository) setQueueStatus(seq int64, status string) error {
	result, err := r.db.Exec("UPDATE sync_queue SET status = ? WHERE seq = ?", status, seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update queue status", err)
	}
	return r.checkQueueRow(result, seq)
}

func (r *Repository) checkQueueRow(result sql.Result, seq int64) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrQueueEntryMissing, "queue entry not found")
	}
	return nil
}

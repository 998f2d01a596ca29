// Package sync drains the durable mutation queue against the remote API
// and reconciles server state back into the local store.
package sync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/keepsakehq/keepsake-client/internal/db"
	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/live"
	"github.com/keepsakehq/keepsake-client/internal/logging"
	"github.com/keepsakehq/keepsake-client/internal/models"
)

// EngineConfig holds drain and retry policy.
type EngineConfig struct {
	BackoffBase time.Duration // first retry delay, doubled per attempt
	BackoffCap  time.Duration // upper bound on the retry delay
	MaxRetries  int           // retries before an entry is parked in error
	PageSize    int           // records per page during background refresh
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		BackoffBase: 2 * time.Second,
		BackoffCap:  5 * time.Minute,
		MaxRetries:  5,
		PageSize:    50,
	}
}

// Listener receives engine lifecycle events for surfacing in the UI shell.
type Listener func(event string, fields map[string]interface{})

// Engine drains the sync queue strictly sequentially, coalescing redundant
// entries, and owns every syncStatus transition into synced or error.
// Repositories only ever set pending; that split keeps optimistic edits
// and server reconciliation from racing.
type Engine struct {
	store *db.Repository
	api   Client
	bus   *live.Bus
	cfg   *EngineConfig

	// test seam
	now func() time.Time

	mu        sync.Mutex
	draining  bool
	pending   int
	lastSync  *time.Time
	lastError string
	listener  Listener
}

// NewEngine creates a sync engine. A nil config means defaults.
func NewEngine(store *db.Repository, api Client, bus *live.Bus, config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	return &Engine{
		store: store,
		api:   api,
		bus:   bus,
		cfg:   config,
		now:   time.Now,
	}
}

// SetListener registers the event callback. Events fire on the draining
// goroutine.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

func (e *Engine) notify(event string, fields map[string]interface{}) {
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l(event, fields)
	}
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Draining  bool
	Pending   int
	LastSync  *time.Time
	LastError string
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Draining:  e.draining,
		Pending:   e.pending,
		LastSync:  e.lastSync,
		LastError: e.lastError,
	}
}

// PendingCount returns the cached count of unacknowledged queue entries.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// RefreshPendingCount re-reads the queue size from the store and
// broadcasts it.
func (e *Engine) RefreshPendingCount() (int, error) {
	count, err := e.store.PendingQueueCount()
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.pending = count
	e.mu.Unlock()
	e.notify("sync.queue_count", map[string]interface{}{"count": count})
	return count, nil
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Sent      int // entries acknowledged by the server
	Coalesced int // entries dropped without a network call
	Requeued  int // entries rescheduled with backoff
	Abandoned int // entries parked in error state
}

// Drain processes ready queue entries in seq order. It stops at the first
// transient failure so later entries never overtake one they may depend
// on; rejected entries are parked and the drain continues. Only one drain
// runs at a time.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "a drain is already running")
	}
	e.draining = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	// Only one drain runs at a time, so any in_flight entry at this point
	// was orphaned by a crash while its request was outstanding. Return
	// them to queued; the server treats replays of the same client id as
	// idempotent.
	if recovered, err := e.store.RequeueInFlightEntries(); err != nil {
		return nil, err
	} else if recovered > 0 {
		logging.Warn("recovered interrupted queue entries", map[string]interface{}{
			"count": recovered,
		})
	}

	entries, err := e.store.ReadyQueueEntries(e.now().Unix())
	if err != nil {
		return nil, err
	}
	result := &DrainResult{}
	if len(entries) == 0 {
		_, _ = e.RefreshPendingCount()
		return result, nil
	}

	e.notify("sync.started", map[string]interface{}{"entries": len(entries)})
	logging.Debug("drain started", map[string]interface{}{"entries": len(entries)})

	plan, err := e.coalesce(entries, result)
	if err != nil {
		e.finishDrain(result, err)
		return result, err
	}

	var drainErr error
	for _, entry := range plan {
		if err := ctx.Err(); err != nil {
			drainErr = err
			break
		}
		if drainErr = e.processEntry(ctx, entry, result); drainErr != nil {
			break
		}
	}

	e.finishDrain(result, drainErr)
	return result, drainErr
}

func (e *Engine) finishDrain(result *DrainResult, drainErr error) {
	count, _ := e.store.PendingQueueCount()

	e.mu.Lock()
	e.pending = count
	if drainErr != nil {
		e.lastError = drainErr.Error()
	} else {
		now := e.now()
		e.lastSync = &now
		e.lastError = ""
	}
	e.mu.Unlock()

	fields := map[string]interface{}{
		"sent":      result.Sent,
		"coalesced": result.Coalesced,
		"requeued":  result.Requeued,
		"abandoned": result.Abandoned,
		"pending":   count,
	}
	if drainErr != nil {
		fields["error"] = drainErr.Error()
		e.notify("sync.failed", fields)
		logging.ErrorWithCode("drain stopped early", string(apperrors.ErrSyncFailed), drainErr, fields)
		return
	}
	e.notify("sync.completed", fields)
	logging.Info("drain completed", fields)
}

// processEntry dispatches one surviving entry and applies the retry
// taxonomy to its failure. A non-nil return stops the drain.
func (e *Engine) processEntry(ctx context.Context, entry *models.SyncQueueEntry, result *DrainResult) error {
	err := e.dispatch(ctx, entry)
	if err == nil {
		result.Sent++
		return nil
	}

	switch {
	case IsAuthFailure(err):
		// Every later entry would hit the same wall; park this one and
		// stop so the shell can prompt for reauthentication.
		e.park(entry, err)
		result.Abandoned++
		return err

	case IsRejected(err):
		// Retrying the same invalid payload cannot succeed. Park it for
		// manual correction and keep draining.
		e.park(entry, err)
		result.Abandoned++
		return nil

	default:
		retries := entry.RetryCount + 1
		if retries > e.cfg.MaxRetries {
			e.park(entry, err)
			result.Abandoned++
			return err
		}
		nextAt := e.now().Add(e.backoff(entry.RetryCount)).Unix()
		if ferr := e.store.FailQueueEntry(entry.Seq, retries, nextAt, err.Error()); ferr != nil {
			return ferr
		}
		result.Requeued++
		logging.Warn("entry requeued with backoff", map[string]interface{}{
			"seq": entry.Seq, "retries": retries, "next_retry_at": nextAt,
		})
		return err
	}
}

// backoff returns the delay before retry number retryCount+1.
func (e *Engine) backoff(retryCount int) time.Duration {
	delay := e.cfg.BackoffBase << uint(retryCount)
	if delay > e.cfg.BackoffCap || delay <= 0 {
		return e.cfg.BackoffCap
	}
	return delay
}

// park moves an entry to error state and flags its record. The record
// carries the bare failure reason for the UI; the coded rendering stays in
// the queue entry and the logs.
func (e *Engine) park(entry *models.SyncQueueEntry, cause error) {
	if err := e.store.AbandonQueueEntry(entry.Seq, cause.Error()); err != nil {
		logging.Error("failed to park queue entry", err,
			map[string]interface{}{"seq": entry.Seq})
	}
	if entry.Operation == models.OpDelete {
		return
	}
	err := e.store.SetSyncState(entry.EntityType, entry.EntityID,
		models.SyncStatusError, nil, apperrors.MessageOf(cause))
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		logging.Error("failed to flag record", err,
			map[string]interface{}{"entity_id": string(entry.EntityID)})
	}
	e.bus.Publish(live.Change{
		Table: models.TableFor(entry.EntityType),
		Op:    live.OpPut,
		ID:    string(entry.EntityID),
	})
}

// dispatch sends one entry to the remote API and, on acknowledgment,
// removes it and reconciles the server's canonical record.
func (e *Engine) dispatch(ctx context.Context, entry *models.SyncQueueEntry) error {
	if err := e.store.MarkQueueEntryInFlight(entry.Seq); err != nil {
		return err
	}

	var serverRecord json.RawMessage
	var err error
	switch entry.Operation {
	case models.OpCreate:
		serverRecord, err = e.api.Create(ctx, entry.EntityType, entry.Payload)
	case models.OpUpdate:
		serverRecord, err = e.api.Update(ctx, entry.EntityType, entry.EntityID, entry.Payload)
	case models.OpDelete:
		err = e.api.Delete(ctx, entry.EntityType, entry.EntityID)
	default:
		err = apperrors.New(apperrors.ErrInternal, "unknown queue operation "+entry.Operation)
	}
	if err != nil {
		return err
	}

	if derr := e.store.DeleteQueueEntry(entry.Seq); derr != nil &&
		!apperrors.Is(derr, apperrors.ErrQueueEntryMissing) {
		return derr
	}
	if entry.Operation != models.OpDelete {
		e.reconcileAck(entry, serverRecord)
	}
	return nil
}

// reconcileAck merges the server's canonical record after a successful
// create or update. If the user queued a newer edit while this request
// was in flight, the record stays pending and keeps the local fields.
func (e *Engine) reconcileAck(entry *models.SyncQueueEntry, serverRecord json.RawMessage) {
	remaining, err := e.store.QueueEntriesForEntity(entry.EntityType, entry.EntityID)
	if err == nil && len(remaining) > 0 {
		return
	}

	now := e.now().Unix()
	if len(serverRecord) > 0 {
		if err := e.applyServerRecord(entry.EntityType, serverRecord, now); err == nil {
			return
		}
	}

	// No usable body; just flip the sync state.
	err = e.store.SetSyncState(entry.EntityType, entry.EntityID,
		models.SyncStatusSynced, &now, "")
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		logging.Error("failed to mark record synced", err,
			map[string]interface{}{"entity_id": string(entry.EntityID)})
		return
	}
	e.bus.Publish(live.Change{
		Table: models.TableFor(entry.EntityType),
		Op:    live.OpPut,
		ID:    string(entry.EntityID),
	})
}

// coalesce reduces the ready entries to their net effect before any
// network traffic. The newest delete wins and strips earlier operations
// for its entity; a delete of a still-unsent create nets to nothing; among
// updates only the latest snapshot survives, folded into the queued create
// when one exists. Survivors keep their queue position, so ordering across
// entities is never violated.
func (e *Engine) coalesce(entries []*models.SyncQueueEntry, result *DrainResult) ([]*models.SyncQueueEntry, error) {
	type group struct {
		entries []*models.SyncQueueEntry
	}
	byEntity := make(map[string]*group)
	var order []*group
	for _, entry := range entries {
		key := string(entry.EntityType) + "/" + string(entry.EntityID)
		g, ok := byEntity[key]
		if !ok {
			g = &group{}
			byEntity[key] = g
			order = append(order, g)
		}
		g.entries = append(g.entries, entry)
	}

	drop := func(entry *models.SyncQueueEntry) error {
		if err := e.store.DeleteQueueEntry(entry.Seq); err != nil {
			return err
		}
		result.Coalesced++
		return nil
	}

	var plan []*models.SyncQueueEntry
	for _, g := range order {
		if len(g.entries) == 1 {
			plan = append(plan, g.entries[0])
			continue
		}

		var create, lastUpdate, deletion *models.SyncQueueEntry
		for _, entry := range g.entries {
			switch entry.Operation {
			case models.OpCreate:
				create = entry
			case models.OpUpdate:
				lastUpdate = entry
			case models.OpDelete:
				deletion = entry
			}
		}

		switch {
		case deletion != nil && create != nil:
			// The server never heard of this entity.
			for _, entry := range g.entries {
				if err := drop(entry); err != nil {
					return nil, err
				}
			}

		case deletion != nil:
			for _, entry := range g.entries {
				if entry == deletion {
					continue
				}
				if err := drop(entry); err != nil {
					return nil, err
				}
			}
			plan = append(plan, deletion)

		case create != nil:
			if lastUpdate != nil {
				if err := e.store.UpdateQueuePayload(create.Seq, lastUpdate.Payload); err != nil {
					return nil, err
				}
				create.Payload = lastUpdate.Payload
				for _, entry := range g.entries {
					if entry == create {
						continue
					}
					if err := drop(entry); err != nil {
						return nil, err
					}
				}
			}
			plan = append(plan, create)

		default:
			for _, entry := range g.entries {
				if entry == lastUpdate {
					continue
				}
				if err := drop(entry); err != nil {
					return nil, err
				}
			}
			plan = append(plan, lastUpdate)
		}
	}

	// Ready entries arrive seq-sorted, but a group's survivor may sit
	// later than another group's first entry. Restore global seq order.
	sort.Slice(plan, func(i, j int) bool { return plan[i].Seq < plan[j].Seq })
	return plan, nil
}

// RetryEntry re-arms an entry parked in error state and marks its record
// pending again.
func (e *Engine) RetryEntry(seq int64) error {
	entry, err := e.store.GetQueueEntry(seq)
	if err != nil {
		return err
	}
	if entry.Status != models.EntryStatusError {
		return apperrors.New(apperrors.ErrInvalid, "queue entry is not in error state")
	}

	if err := e.store.ResetQueueEntry(seq); err != nil {
		return err
	}
	if entry.Operation != models.OpDelete {
		serr := e.store.SetSyncState(entry.EntityType, entry.EntityID,
			models.SyncStatusPending, nil, "")
		if serr != nil && !apperrors.Is(serr, apperrors.ErrNotFound) {
			return serr
		}
		e.bus.Publish(live.Change{
			Table: models.TableFor(entry.EntityType),
			Op:    live.OpPut,
			ID:    string(entry.EntityID),
		})
	}
	_, _ = e.RefreshPendingCount()
	return nil
}

// FailedEntries returns entries parked in error state for the UI.
func (e *Engine) FailedEntries() ([]*models.SyncQueueEntry, error) {
	return e.store.FailedQueueEntries()
}

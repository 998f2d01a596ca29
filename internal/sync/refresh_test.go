package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/uuid"
)

func memoryJSON(id models.UUID, userID models.UUID, title string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"user_id":%q,"title":%q,"visibility":"private"}`, id, userID, title))
}

func TestRefreshWalksAllPages(t *testing.T) {
	f := newEngineFixture(t)

	ids := []models.UUID{
		models.UUID(uuid.New()),
		models.UUID(uuid.New()),
		models.UUID(uuid.New()),
	}
	f.api.pages = map[models.EntityType][]*Page{
		models.EntityMemory: {
			{
				Records: []json.RawMessage{
					memoryJSON(ids[0], f.userID, "one"),
					memoryJSON(ids[1], f.userID, "two"),
				},
				NextCursor: "page-2",
			},
			{
				Records: []json.RawMessage{
					memoryJSON(ids[2], f.userID, "three"),
				},
			},
		},
	}

	applied, err := f.engine.Refresh(context.Background(), models.EntityMemory)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if applied != 3 {
		t.Errorf("applied = %d, want 3", applied)
	}

	for i, id := range ids {
		m, err := f.store.GetMemory(id)
		if err != nil {
			t.Fatalf("record %d missing: %v", i, err)
		}
		if m.SyncStatus != models.SyncStatusSynced {
			t.Errorf("record %d status = %q, want synced", i, m.SyncStatus)
		}
	}
}

func TestRefreshPreservesUnsyncedLocalEdits(t *testing.T) {
	f := newEngineFixture(t)

	// A local edit that has not drained yet.
	pending, err := f.repos.Memories.Create(&models.Memory{Title: "my words"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A record parked in error awaiting manual correction.
	failed := &models.Memory{
		ID:       models.UUID(uuid.New()),
		UserID:   f.userID,
		Title:    "needs fixing",
		SyncMeta: models.SyncMeta{SyncStatus: models.SyncStatusError, LastError: "rejected"},
	}
	if err := f.store.PutMemory(failed); err != nil {
		t.Fatalf("PutMemory failed: %v", err)
	}

	// A clean mirror the server may overwrite.
	synced := &models.Memory{
		ID:       models.UUID(uuid.New()),
		UserID:   f.userID,
		Title:    "stale",
		SyncMeta: models.SyncMeta{SyncStatus: models.SyncStatusSynced},
	}
	if err := f.store.PutMemory(synced); err != nil {
		t.Fatalf("PutMemory failed: %v", err)
	}

	f.api.pages = map[models.EntityType][]*Page{
		models.EntityMemory: {{
			Records: []json.RawMessage{
				memoryJSON(pending.ID, f.userID, "server words"),
				memoryJSON(failed.ID, f.userID, "server fix"),
				memoryJSON(synced.ID, f.userID, "fresh"),
			},
		}},
	}

	applied, err := f.engine.Refresh(context.Background(), models.EntityMemory)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want only the synced record", applied)
	}

	got, _ := f.store.GetMemory(pending.ID)
	if got.Title != "my words" || got.SyncStatus != models.SyncStatusPending {
		t.Errorf("pending record clobbered: %+v", got)
	}
	got, _ = f.store.GetMemory(failed.ID)
	if got.Title != "needs fixing" || got.SyncStatus != models.SyncStatusError {
		t.Errorf("error record clobbered: %+v", got)
	}
	got, _ = f.store.GetMemory(synced.ID)
	if got.Title != "fresh" {
		t.Errorf("synced record not updated: %+v", got)
	}
}

func TestRefreshSkipsRecordsWithoutID(t *testing.T) {
	f := newEngineFixture(t)

	good := models.UUID(uuid.New())
	f.api.pages = map[models.EntityType][]*Page{
		models.EntityMemory: {{
			Records: []json.RawMessage{
				json.RawMessage(`{"title":"no id"}`),
				memoryJSON(good, f.userID, "has id"),
			},
		}},
	}

	applied, err := f.engine.Refresh(context.Background(), models.EntityMemory)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if _, err := f.store.GetMemory(good); err != nil {
		t.Errorf("valid record not stored: %v", err)
	}
}

func TestRefreshAllCoversEveryEntityType(t *testing.T) {
	f := newEngineFixture(t)

	if _, err := f.engine.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}

	fetched := make(map[models.EntityType]bool)
	for _, call := range f.api.calls {
		if call.op == "fetch" {
			fetched[call.et] = true
		}
	}
	for _, et := range refreshOrder {
		if !fetched[et] {
			t.Errorf("entity type %s never fetched", et)
		}
	}
}

package repos

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/keepsakehq/keepsake-client/internal/db"
	apperrors "github.com/keepsakehq/keepsake-client/internal/errors"
	"github.com/keepsakehq/keepsake-client/internal/live"
	"github.com/keepsakehq/keepsake-client/internal/models"
	"github.com/keepsakehq/keepsake-client/internal/session"
	"github.com/keepsakehq/keepsake-client/internal/uuid"
)

type fixture struct {
	store  *db.Repository
	bus    *live.Bus
	repos  *Repos
	userID models.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store := db.NewRepository(database.DB)
	sessions, err := session.NewManager(store)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	userID := models.UUID(uuid.New())
	if err := sessions.SignIn(userID, "test-token"); err != nil {
		t.Fatalf("failed to sign in: %v", err)
	}

	bus := live.NewBus()
	return &fixture{
		store:  store,
		bus:    bus,
		repos:  New(store, bus, sessions),
		userID: userID,
	}
}

func (f *fixture) queueFor(t *testing.T, et models.EntityType, id models.UUID) []*models.SyncQueueEntry {
	t.Helper()
	entries, err := f.store.QueueEntriesForEntity(et, id)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	return entries
}

func TestMemoryCreateIsOptimistic(t *testing.T) {
	f := newFixture(t)

	var notified []live.Change
	f.bus.Subscribe(func(c live.Change) { notified = append(notified, c) }, "memories")

	m, err := f.repos.Memories.Create(&models.Memory{Title: "first swim"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if m.ID == "" || !uuid.IsValid(string(m.ID)) {
		t.Errorf("expected client-generated uuid, got %q", m.ID)
	}
	if m.UserID != f.userID {
		t.Errorf("UserID = %q, want session user %q", m.UserID, f.userID)
	}
	if m.SyncStatus != models.SyncStatusPending {
		t.Errorf("SyncStatus = %q, want pending", m.SyncStatus)
	}

	// The local write and queue entry happen before Create returns.
	stored, err := f.store.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("record not in store: %v", err)
	}
	if stored.Title != "first swim" {
		t.Errorf("stored title = %q", stored.Title)
	}

	entries := f.queueFor(t, models.EntityMemory, m.ID)
	if len(entries) != 1 || entries[0].Operation != models.OpCreate {
		t.Fatalf("queue = %+v, want one create", entries)
	}
	var payload models.Memory
	if err := json.Unmarshal(entries[0].Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.ID != m.ID || payload.Title != "first swim" {
		t.Errorf("payload = %+v", payload)
	}

	if len(notified) != 1 || notified[0].ID != string(m.ID) || notified[0].Op != live.OpPut {
		t.Errorf("change notifications = %+v", notified)
	}
}

func TestCreateRequiresSession(t *testing.T) {
	f := newFixture(t)

	sessions, err := session.NewManager(f.store)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := sessions.SignOut(); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	repos := New(f.store, f.bus, sessions)

	if _, err := repos.Memories.Create(&models.Memory{Title: "x"}); apperrors.CodeOf(err) != apperrors.ErrNoSession {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestMemoryUpdateAppendsSecondEntry(t *testing.T) {
	f := newFixture(t)

	m, err := f.repos.Memories.Create(&models.Memory{Title: "A"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := f.repos.Memories.Update(m.ID, func(mem *models.Memory) {
		mem.Title = "B"
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Title != "B" || got.SyncStatus != models.SyncStatusPending {
		t.Errorf("updated record = %+v", got)
	}

	entries := f.queueFor(t, models.EntityMemory, m.ID)
	if len(entries) != 2 {
		t.Fatalf("queue has %d entries, want 2", len(entries))
	}
	if entries[0].Operation != models.OpCreate || entries[1].Operation != models.OpUpdate {
		t.Errorf("queue ops = %s, %s", entries[0].Operation, entries[1].Operation)
	}
	var payload models.Memory
	if err := json.Unmarshal(entries[1].Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.Title != "B" {
		t.Errorf("update payload title = %q, want B", payload.Title)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.repos.Memories.Update(models.UUID(uuid.New()), func(*models.Memory) {})
	if apperrors.CodeOf(err) != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOfUnsyncedCreateCancelsQueue(t *testing.T) {
	f := newFixture(t)

	m, err := f.repos.Memories.Create(&models.Memory{Title: "ephemeral"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.repos.Memories.Update(m.ID, func(mem *models.Memory) {
		mem.Title = "still ephemeral"
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := f.repos.Memories.Delete(m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Never reached the server, so the whole lifecycle nets to nothing.
	if entries := f.queueFor(t, models.EntityMemory, m.ID); len(entries) != 0 {
		t.Errorf("queue still has %d entries", len(entries))
	}
	if _, err := f.store.GetMemory(m.ID); apperrors.CodeOf(err) != apperrors.ErrNotFound {
		t.Errorf("record survived delete: %v", err)
	}
}

func TestDeleteOfSyncedRecordEnqueuesDelete(t *testing.T) {
	f := newFixture(t)

	now := time.Now().Unix()
	m := &models.Memory{
		ID:     models.UUID(uuid.New()),
		UserID: f.userID,
		Title:  "synced ages ago",
		SyncMeta: models.SyncMeta{
			SyncStatus:   models.SyncStatusSynced,
			LastSyncedAt: &now,
		},
	}
	if err := f.store.PutMemory(m); err != nil {
		t.Fatalf("PutMemory failed: %v", err)
	}

	if err := f.repos.Memories.Delete(m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	entries := f.queueFor(t, models.EntityMemory, m.ID)
	if len(entries) != 1 || entries[0].Operation != models.OpDelete {
		t.Fatalf("queue = %+v, want one delete", entries)
	}
}

func TestListScopedToSessionUser(t *testing.T) {
	f := newFixture(t)

	if _, err := f.repos.Memories.Create(&models.Memory{Title: "mine"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Another user's row mirrored by refresh should not show up.
	other := &models.Memory{
		ID:       models.UUID(uuid.New()),
		UserID:   models.UUID(uuid.New()),
		Title:    "theirs",
		SyncMeta: models.SyncMeta{SyncStatus: models.SyncStatusSynced},
	}
	if err := f.store.PutMemory(other); err != nil {
		t.Fatalf("PutMemory failed: %v", err)
	}

	list, err := f.repos.Memories.List(10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Title != "mine" {
		t.Errorf("list = %+v, want just the session user's memory", list)
	}
}

func TestCommentCreateValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.repos.Comments.Create(&models.Comment{Body: "hi"}); apperrors.CodeOf(err) != apperrors.ErrValidation {
		t.Errorf("missing memory id accepted: %v", err)
	}
	if _, err := f.repos.Comments.Create(&models.Comment{MemoryID: models.UUID(uuid.New())}); apperrors.CodeOf(err) != apperrors.ErrValidation {
		t.Errorf("empty body accepted: %v", err)
	}
}

func TestNotificationMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)

	n := &models.Notification{
		ID:       models.UUID(uuid.New()),
		UserID:   f.userID,
		Kind:     "comment",
		Body:     "someone commented",
		SyncMeta: models.SyncMeta{SyncStatus: models.SyncStatusSynced},
	}
	if err := f.store.PutNotification(n); err != nil {
		t.Fatalf("PutNotification failed: %v", err)
	}

	first, err := f.repos.Notifications.MarkRead(n.ID)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if first.ReadAt == nil || first.SyncStatus != models.SyncStatusPending {
		t.Errorf("after MarkRead: %+v", first)
	}

	// Second call is a no-op; no extra queue entry.
	if _, err := f.repos.Notifications.MarkRead(n.ID); err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}
	entries := f.queueFor(t, models.EntityNotification, n.ID)
	if len(entries) != 1 {
		t.Errorf("queue has %d entries, want 1", len(entries))
	}

	count, err := f.repos.Notifications.UnreadCount()
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("UnreadCount = %d, want 0", count)
	}
}

func TestTagCreateAndList(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"travel", "birthday", "school"} {
		if _, err := f.repos.Tags.Create(&models.Tag{Name: name}); err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
	}

	tags, err := f.repos.Tags.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("got %d tags, want 3", len(tags))
	}
	if tags[0].Name != "birthday" {
		t.Errorf("tags not ordered by name: first is %q", tags[0].Name)
	}
}

func TestLiveQuerySeesRepositoryWrites(t *testing.T) {
	f := newFixture(t)

	var titles []string
	q := live.Watch(f.bus, func() ([]*models.Memory, error) {
		return f.repos.Memories.List(10, 0)
	}, func(result []*models.Memory) {
		titles = titles[:0]
		for _, m := range result {
			titles = append(titles, m.Title)
		}
	}, nil, "memories")
	defer q.Close()

	if len(titles) != 0 {
		t.Fatalf("initial result = %v, want empty", titles)
	}

	if _, err := f.repos.Memories.Create(&models.Memory{Title: "lighthouse trip"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Create has already notified by the time it returned.
	if len(titles) != 1 || titles[0] != "lighthouse trip" {
		t.Errorf("live result = %v", titles)
	}
}

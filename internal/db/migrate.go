// Schema migration management for the local store.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents one schema version step. SQL must be additive so
// existing on-device data survives upgrades.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema versions. Append only; never
// rewrite an entry that has shipped.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial_schema",
		SQL: `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	mood TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT 'private',
	media_url TEXT NOT NULL DEFAULT '',
	comment_count INTEGER NOT NULL DEFAULT 0,
	reaction_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_sync_status ON memories(sync_status);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	follower_count INTEGER NOT NULL DEFAULT 0,
	following_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_comments_memory ON comments(memory_id);
CREATE INDEX IF NOT EXISTS idx_comments_user ON comments(user_id);

CREATE TABLE IF NOT EXISTS reactions (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reactions_memory ON reactions(memory_id);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	memory_id TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	read_at INTEGER,
	created_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

CREATE TABLE IF NOT EXISTS family_members (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	relation TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	linked_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_family_members_user ON family_members(user_id);

CREATE TABLE IF NOT EXISTS stories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	memory_ids TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'draft',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stories_user ON stories(user_id);

CREATE TABLE IF NOT EXISTS tags (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	last_synced_at INTEGER,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tags_user ON tags(user_id);

CREATE TABLE IF NOT EXISTS sync_queue (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_retry_at INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'queued',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);

CREATE TABLE IF NOT EXISTS session (
	user_id TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "timeline_query_indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_comments_memory_created ON comments(memory_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at);
`,
	},
}

// Migrator applies pending schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version, 0 when unmigrated.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Up applies all pending migrations in order.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.Version, err)
		}
	}

	return nil
}

// apply runs a single migration inside a transaction so a failed upgrade
// leaves the prior schema intact.
func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(mig.SQL))
	checksum := hex.EncodeToString(hash[:])

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.Version, time.Now().Unix(), mig.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

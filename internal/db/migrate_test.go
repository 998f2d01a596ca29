package db

import "testing"

func openMigrated(t *testing.T) *DB {
	t.Helper()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	return database
}

func TestMigrateUp(t *testing.T) {
	database := openMigrated(t)

	m := NewMigrator(database.DB)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Errorf("version = %d, want %d", version, migrations[len(migrations)-1].Version)
	}

	// All tables must exist after migration.
	for _, table := range allTables {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrateUpIdempotent(t *testing.T) {
	database := openMigrated(t)

	m := NewMigrator(database.DB)
	if err := m.Up(); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("applied migrations = %d, want %d", count, len(migrations))
	}
}

func TestMigrationVersionsAreOrdered(t *testing.T) {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migration %d (V%d) not after V%d",
				i, migrations[i].Version, migrations[i-1].Version)
		}
	}
}

package sqlite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDB_CreatesOwnerOnlyDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "nested", "events.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file should exist after NewDB")
	require.Equal(t, dbPath, db.Path())
}

func TestNewDB_RunsMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	var table string
	err = db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events'").Scan(&table)
	require.NoError(t, err)
	require.Equal(t, "events", table)

	var indexes int
	err = db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_events_%'").Scan(&indexes)
	require.NoError(t, err)
	require.Equal(t, 3, indexes)

	var version int
	require.NoError(t, db.conn.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	require.Equal(t, 2, version)
}

func TestNewDB_MigrationsAreAppliedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	for i := 0; i < 3; i++ {
		db, err := NewDB(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows))
	require.Equal(t, 2, rows)
}

func TestNewDB_PreMigrationBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	db1, err := NewDB(path)
	require.NoError(t, err)
	_, err = db1.conn.Exec(`INSERT INTO events (name, category, ts, payload) VALUES ('claude.toolUse', 'claude', 1, '{}')`)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	_, err = os.Stat(path + ".bak")
	require.ErrorIs(t, err, os.ErrNotExist, "first open has nothing to back up")

	db2, err := NewDB(path)
	require.NoError(t, err)
	defer db2.Close()

	info, err := os.Stat(path + ".bak")
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewDB_Pragmas(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	var journal string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journal))
	require.Equal(t, "wal", journal)

	var fk int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)

	var busy int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	require.Equal(t, 5000, busy)
}

func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "ping should fail after Close")
}

func TestNewDB_TwoHandlesShareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	db1, err := NewDB(path)
	require.NoError(t, err)
	defer db1.Close()
	db2, err := NewDB(path)
	require.NoError(t, err)
	defer db2.Close()

	_, err = db1.conn.Exec(`INSERT INTO events (name, category, ts) VALUES ('terminal.created', 'terminal', 1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&n))
	require.Equal(t, 1, n)
}

func TestNewDB_UnwritableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	_, err := NewDB(filepath.Join(dir, "sub", "events.db"))
	require.Error(t, err)
}

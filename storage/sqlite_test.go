package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "warptrace.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewSQLite_CreatesSchema(t *testing.T) {
	db := newTestDB(t)

	rows, err := db.ReadDB.Query("SELECT name FROM sqlite_master WHERE type='table'")
	require.NoError(t, err)
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables[name] = true
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{"uploads", "log_events", "anomalies", "schema_migrations"} {
		assert.True(t, tables[want], "missing table %s", want)
	}
}

func TestNewSQLite_EnablesWAL(t *testing.T) {
	db := newTestDB(t)

	var mode string
	require.NoError(t, db.WriteDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestNewSQLite_InMemorySharedBetweenPools(t *testing.T) {
	db, err := NewSQLite(":memory:", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.WriteDB.Exec("INSERT INTO uploads (id, filename) VALUES ('u1', 'a.log')")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.ReadDB.QueryRow("SELECT COUNT(*) FROM uploads").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_WithTransaction_Commits(t *testing.T) {
	db := newTestDB(t)

	err := db.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO uploads (id, filename) VALUES ('tx1', 'a.log')")
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.ReadDB.QueryRow("SELECT COUNT(*) FROM uploads WHERE id = 'tx1'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_WithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)

	boom := errors.New("boom")
	err := db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO uploads (id, filename) VALUES ('tx2', 'a.log')"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.ReadDB.QueryRow("SELECT COUNT(*) FROM uploads WHERE id = 'tx2'").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSQLite_WithTransaction_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)

	require.Panics(t, func() {
		_ = db.WithTransaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO uploads (id, filename) VALUES ('tx3', 'a.log')"); err != nil {
				return err
			}
			panic("boom")
		})
	})

	var n int
	require.NoError(t, db.ReadDB.QueryRow("SELECT COUNT(*) FROM uploads WHERE id = 'tx3'").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSQLite_HealthCheck(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestSQLite_GetConnectionPoolStats(t *testing.T) {
	db := newTestDB(t)

	// Schema creation already exercised the write pool.
	stats := db.GetConnectionPoolStats()
	assert.GreaterOrEqual(t, stats.Write.OpenConnections, 1)
	assert.GreaterOrEqual(t, stats.Read.OpenConnections, 0)
}

func TestValidateDatabasePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"empty", "", true},
		{"memory", ":memory:", false},
		{"relative", "data/warptrace.db", false},
		{"null byte", "data/\x00bad.db", true},
		{"parent escape", "../outside.db", true},
		{"embedded parent escape", "data/../../outside.db", true},
		{"absolute outside temp", "/etc/warptrace.db", true},
		{"absolute under temp", filepath.Join(os.TempDir(), "warptrace.db"), false},
		{"windows reserved name", "CON", true},
		{"windows reserved with extension", "data/nul.db", true},
		{"too long", strings.Repeat("a", 513), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDatabasePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

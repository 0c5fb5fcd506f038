package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn    string
		path   string
		sqlite bool
	}{
		{"sqlite://data/tts.db", "data/tts.db", true},
		{"file::memory:?cache=shared", "file::memory:?cache=shared", true},
		{":memory:", ":memory:", true},
		{"app:apppass@tcp(127.0.0.1:3306)/tts?parseTime=true", "", false},
	}
	for _, tt := range tests {
		path, ok := sqlitePath(tt.dsn)
		assert.Equal(t, tt.sqlite, ok, tt.dsn)
		assert.Equal(t, tt.path, path, tt.dsn)
	}
}

func TestConnectSQLite(t *testing.T) {
	gdb, err := Connect("file:db_connect_test?mode=memory&cache=shared")
	require.NoError(t, err)

	var n int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConnectCreatesSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	gdb, err := Connect("sqlite://" + filepath.Join(dir, "tts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, gdb.Exec("CREATE TABLE t (id INTEGER)").Error)
	assert.FileExists(t, filepath.Join(dir, "tts.db"))
}

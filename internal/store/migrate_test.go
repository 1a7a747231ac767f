package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := LoadMigrations(migrationFiles, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, migs)

	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.SQL)
	}
	assert.Equal(t, "create_trades", migs[0].Name)
}

func TestLoadMigrations_SortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql": {Data: []byte("SELECT 2;")},
		"m/002_first.sql": {Data: []byte("SELECT 1;")},
		"m/README.md":     {Data: []byte("notes")},
	}
	migs, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, 2, migs[0].Version)
	assert.Equal(t, "first", migs[0].Name)
	assert.Equal(t, 10, migs[1].Version)
}

func TestLoadMigrations_BadName(t *testing.T) {
	fsys := fstest.MapFS{"m/init.sql": {Data: []byte("SELECT 1;")}}
	_, err := LoadMigrations(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected: NNN_name.sql")
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := LoadMigrations(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

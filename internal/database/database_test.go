package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MicroDaWay/bilidash/internal/config"
	"github.com/MicroDaWay/bilidash/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrateAndRoundTrip(t *testing.T) {
	db := newTestDB(t)

	m := models.Manuscript{
		Title:    "my first upload",
		View:     123,
		Tag:      "music",
		PostedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&m).Error)
	assert.False(t, m.ID.IsZero(), "ULID assigned on create")

	var got models.Manuscript
	require.NoError(t, db.First(&got, "title = ?", "my first upload").Error)
	assert.Equal(t, int64(123), got.View)
	assert.Equal(t, m.ID.String(), got.ID.String())
}

func TestUniqueIndexes(t *testing.T) {
	db := newTestDB(t)

	s := models.Salary{Year: 2026, Month: 8, Salary: 5000}
	require.NoError(t, db.Create(&s).Error)

	dup := models.Salary{Year: 2026, Month: 8, Salary: 6000}
	assert.Error(t, db.Create(&dup).Error, "same period must be rejected")

	next := models.Salary{Year: 2026, Month: 9, Salary: 6000}
	assert.NoError(t, db.Create(&next).Error)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

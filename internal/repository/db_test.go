package repository

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wgd/internal/model"
)

func TestNewDB_WritesSchemaVersion(t *testing.T) {
	s := setupTestStore(t)

	version, err := SchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, model.CurrentSchemaVersion, version)
}

func TestNewDB_ReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wgd.sqlite")

	db, err := NewDB(path, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	db, err = NewDB(path, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, _ = db.DB()
	defer sqlDB.Close()
}

func TestNewDB_SchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.sqlite")

	db, err := NewDB(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.SchemaDatum{}).
		Where(model.SchemaDatum{Key: model.SchemaVersionKey}).
		Update("value", "0.9").Error)
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	_, err = NewDB(path, zerolog.Nop())
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "0.9", mismatch.Found)
	assert.Equal(t, model.CurrentSchemaVersion, mismatch.Want)
}

func TestNewDB_SchemaMismatchLeavesDatabaseUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.sqlite")

	raw, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, raw.AutoMigrate(&model.SchemaDatum{}))
	require.NoError(t, raw.Create(&model.SchemaDatum{Key: model.SchemaVersionKey, Value: "0.9"}).Error)

	_, err = NewDB(path, zerolog.Nop())
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "0.9", mismatch.Found)

	for _, table := range []any{&model.User{}, &model.Task{}, &model.TaskParticipation{}, &model.Reminder{}} {
		assert.False(t, raw.Migrator().HasTable(table), "%T must not be created", table)
	}

	sqlDB, _ := raw.DB()
	require.NoError(t, sqlDB.Close())
}

func TestWithParams(t *testing.T) {
	assert.Equal(t, "a.db?"+sqliteParams, withParams("a.db"))
	assert.Equal(t, "file:a.db?cache=shared&"+sqliteParams, withParams("file:a.db?cache=shared"))
	assert.Equal(t, "a.db?_txlock=deferred", withParams("a.db?_txlock=deferred"))
}

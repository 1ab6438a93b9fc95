package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testStore struct {
	db        *gorm.DB
	users     *UserRepository
	tasks     *TaskRepository
	reminders *ReminderRepository
}

func setupTestStore(t *testing.T) testStore {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return testStore{
		db:        db,
		users:     NewUserRepository(db),
		tasks:     NewTaskRepository(db, time.UTC),
		reminders: NewReminderRepository(db),
	}
}

func addUsers(t *testing.T, s testStore, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := s.users.Create(context.Background(), name)
		require.NoError(t, err)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wgd/internal/repository"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingPreempter struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPreempter) Preempt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return true
}

func (p *countingPreempter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type testEnv struct {
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	reminders *repository.ReminderRepository
	notes     *recorder
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return testEnv{
		users:     repository.NewUserRepository(db),
		tasks:     repository.NewTaskRepository(db, time.UTC),
		reminders: repository.NewReminderRepository(db),
		notes:     &recorder{},
	}
}

func (e testEnv) addUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := e.users.Create(context.Background(), name)
		require.NoError(t, err)
	}
}

func (e testEnv) oracle(now func() time.Time) *Oracle {
	return NewOracle(e.tasks, e.reminders, now)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

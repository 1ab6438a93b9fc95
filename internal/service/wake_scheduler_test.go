package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wgd/internal/model"
)

func newTaskScheduler(env testEnv, clock *fakeClock) *WakeScheduler {
	resolver := NewRotationResolver(env.tasks, env.notes, time.UTC)
	return NewWakeScheduler(model.ClassTask, env.oracle(clock.Now), resolver.Fire,
		WakeOptions{LeadTime: 8 * time.Hour, IdlePoll: time.Hour, Now: clock.Now}, zerolog.Nop())
}

func newReminderScheduler(env testEnv, now func() time.Time) *WakeScheduler {
	dispatcher := NewReminderDispatcher(env.reminders, env.notes, time.UTC)
	return NewWakeScheduler(model.ClassReminder, env.oracle(now), dispatcher.Fire,
		WakeOptions{LeadTime: 8 * time.Hour, IdlePoll: time.Hour, Now: now}, zerolog.Nop())
}

func TestWakeScheduler_CheckOnceRotatesParticipants(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice", "Bob", "Carol")

	task, err := env.tasks.Create(ctx, "Trash", day(2024, 1, 1), 7, []string{"alice", "bob", "carol"}, day(2023, 12, 1))
	require.NoError(t, err)

	clock := newFakeClock(day(2024, 1, 1).Add(-time.Hour))
	s := newTaskScheduler(env, clock)

	var order []string
	for i := 0; i < 4; i++ {
		res := s.CheckOnce(ctx)
		require.Equal(t, 1, res.Fired, "pass %d", i)
		clock.Advance(7 * 24 * time.Hour)
	}
	for _, msg := range env.notes.Messages() {
		order = append(order, msg[strings.Index(msg, "<b>")+3:strings.Index(msg, "</b>")])
	}
	assert.Equal(t, []string{"Alice", "Bob", "Carol", "Alice"}, order)

	got, err := env.tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.NextDueDate.Equal(day(2024, 1, 29)), "next due %s", got.NextDueDate)
}

func TestWakeScheduler_CheckOnceOutsideWindowFiresNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice")

	_, err := env.tasks.Create(ctx, "Trash", day(2024, 1, 2), 7, []string{"alice"}, day(2023, 12, 1))
	require.NoError(t, err)

	clock := newFakeClock(day(2024, 1, 1))
	res := newTaskScheduler(env, clock).CheckOnce(ctx)

	assert.Zero(t, res.Due)
	assert.Zero(t, env.notes.Len())
}

func TestWakeScheduler_TaskWithoutParticipantsIsSkipped(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice", "Bob")

	orphan, err := env.tasks.Create(ctx, "Orphan", day(2024, 1, 1), 7, []string{"alice"}, day(2023, 12, 1))
	require.NoError(t, err)
	_, err = env.tasks.Create(ctx, "Dishes", day(2024, 1, 1).Add(time.Hour), 1, []string{"bob"}, day(2023, 12, 1))
	require.NoError(t, err)

	alice, err := env.users.FindByName(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, env.users.Remove(ctx, alice.ID))

	clock := newFakeClock(day(2024, 1, 1).Add(-time.Hour))
	res := newTaskScheduler(env, clock).CheckOnce(ctx)

	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 1, res.Fired)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, env.notes.Messages(), 1)
	assert.Contains(t, env.notes.Messages()[0], "Bob")

	got, err := env.tasks.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.True(t, got.NextDueDate.Equal(day(2024, 1, 1)))
}

func TestWakeScheduler_ConcurrentPassesNotifyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	now := day(2030, 6, 1)
	for i := 0; i < 10; i++ {
		_, err := env.reminders.Create(ctx, "r", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	s := newReminderScheduler(env, func() time.Time { return now })

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.CheckOnce(ctx)
			mu.Lock()
			fired += res.Fired
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, fired)
	assert.Equal(t, 10, env.notes.Len())
	n, err := env.reminders.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWakeScheduler_EarlyWakeFiresSoonerReminder(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.reminders.Create(ctx, "dentist", time.Now().Add(10*time.Hour))
	require.NoError(t, err)

	s := newReminderScheduler(env, time.Now)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.State() == StateSleeping }, 2*time.Second, 10*time.Millisecond)

	intake := NewIntake(env.users, env.tasks, env.reminders, env.oracle(time.Now), time.Now, zerolog.Nop())
	intake.AttachSchedulers(nil, s)

	stored, err := intake.ImportReminder(ctx, "parcel", time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, stored)

	require.Eventually(t, func() bool { return env.notes.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, env.notes.Messages()[0], "parcel")

	n, err := env.reminders.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, env.notes.Len())
}

func TestWakeScheduler_IdleWhenEmpty(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := newReminderScheduler(env, time.Now)
	assert.False(t, s.Preempt())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.State() == StateIdle }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Running())
	assert.False(t, s.Preempt())
}

func TestWakeScheduler_MaxSleepBoundsWait(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	now := day(2030, 1, 1)
	_, err := env.reminders.Create(ctx, "far", now.Add(30*24*time.Hour))
	require.NoError(t, err)

	s := NewWakeScheduler(model.ClassReminder, env.oracle(func() time.Time { return now }), nil,
		WakeOptions{LeadTime: 8 * time.Hour, MaxSleep: time.Hour, Now: func() time.Time { return now }}, zerolog.Nop())

	delay, idle := s.nextWake(ctx)
	assert.False(t, idle)
	assert.Equal(t, time.Hour, delay)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "sleeping", StateSleeping.String())
	assert.Equal(t, "checking", StateChecking.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wgd/internal/repository"
)

func newTestIntake(env testEnv, clock *fakeClock) (*Intake, *countingPreempter, *countingPreempter) {
	in := NewIntake(env.users, env.tasks, env.reminders, env.oracle(clock.Now), clock.Now, zerolog.Nop())
	taskWake, reminderWake := &countingPreempter{}, &countingPreempter{}
	in.AttachSchedulers(taskWake, reminderWake)
	return in, taskWake, reminderWake
}

func TestIntake_ImportReminderSkipsPast(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock(day(2030, 1, 10))
	in, _, wake := newTestIntake(env, clock)

	stored, err := in.ImportReminder(ctx, "yesterday", day(2030, 1, 9))
	require.NoError(t, err)
	assert.False(t, stored)

	n, err := env.reminders.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, wake.Calls())
}

func TestIntake_ImportReminderPreemptsOnlyWhenSooner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock(day(2030, 1, 1))
	in, taskWake, wake := newTestIntake(env, clock)

	// First reminder of an empty class always counts as sooner.
	_, err := in.ImportReminder(ctx, "a", day(2030, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, wake.Calls())

	_, err = in.ImportReminder(ctx, "later", day(2030, 1, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, wake.Calls())

	_, err = in.ImportReminder(ctx, "same", day(2030, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, wake.Calls())

	_, err = in.ImportReminder(ctx, "sooner", day(2030, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, wake.Calls())
	assert.Zero(t, taskWake.Calls())

	n, err := env.reminders.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

const testCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//wgd//test//EN
BEGIN:VEVENT
UID:past@wgd
DTSTAMP:20300101T000000Z
DTSTART:20291231T090000Z
SUMMARY:Old news
END:VEVENT
BEGIN:VEVENT
UID:bins@wgd
DTSTAMP:20300101T000000Z
DTSTART:20300103T070000Z
SUMMARY:Bin collection
END:VEVENT
BEGIN:VEVENT
UID:meter@wgd
DTSTAMP:20300101T000000Z
DTSTART:20300102T180000Z
SUMMARY:Meter reading
END:VEVENT
END:VCALENDAR
`

func TestIntake_ImportCalendar(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock(day(2030, 1, 1))
	in, _, wake := newTestIntake(env, clock)

	res, err := in.ImportCalendar(ctx, strings.NewReader(strings.ReplaceAll(testCalendar, "\n", "\r\n")))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, res.Preempted)
	assert.Equal(t, 1, wake.Calls())

	reminders, err := env.reminders.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	assert.Equal(t, "Meter reading", reminders[0].Description)
	assert.True(t, reminders[0].Date.Equal(time.Date(2030, 1, 2, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Bin collection", reminders[1].Description)
}

func TestIntake_CreateTaskMovesPastDueForward(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice")
	clock := newFakeClock(day(2024, 1, 20).Add(6 * time.Hour))
	in, wake, _ := newTestIntake(env, clock)

	task, err := in.CreateTask(ctx, TaskInput{Description: "Trash", Due: day(2024, 1, 1), Interval: 7, Participants: []string{"alice"}})
	require.NoError(t, err)
	assert.True(t, task.NextDueDate.Equal(day(2024, 1, 22)), "next due %s", task.NextDueDate)
	assert.Equal(t, 1, wake.Calls())
}

func TestIntake_CreateTaskDefaultsToAllUsers(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice", "Bob", "Carol")
	clock := newFakeClock(day(2030, 1, 1))
	in, _, _ := newTestIntake(env, clock)

	task, err := in.CreateTask(ctx, TaskInput{Description: "Bathroom", Due: day(2030, 1, 2), Interval: 14})
	require.NoError(t, err)

	users, err := env.tasks.Participants(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "Bob", users[1].Name)
}

func TestIntake_CreateTaskRejections(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock(day(2030, 1, 1))
	in, wake, _ := newTestIntake(env, clock)

	_, err := in.CreateTask(ctx, TaskInput{Description: "Trash", Due: day(2030, 1, 2), Interval: 7})
	assert.ErrorIs(t, err, repository.ErrNoParticipants)

	_, err = in.CreateTask(ctx, TaskInput{Description: "Trash", Due: day(2030, 1, 2), Interval: 0, Participants: []string{"x"}})
	assert.ErrorIs(t, err, repository.ErrInvalidInterval)

	env.addUsers(t, "Alice")
	_, err = in.CreateTask(ctx, TaskInput{Description: "Trash", Due: day(2030, 1, 2), Interval: 7, Participants: []string{"alice", "zed"}})
	var unknown *repository.UnknownUserError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "zed", unknown.Name)

	tasks, err := env.tasks.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, wake.Calls())
}

func TestIntake_RemoveTask(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addUsers(t, "Alice")
	clock := newFakeClock(day(2030, 1, 1))
	in, _, _ := newTestIntake(env, clock)

	task, err := in.CreateTask(ctx, TaskInput{Description: "Trash", Due: day(2030, 1, 2), Interval: 7})
	require.NoError(t, err)
	require.NoError(t, in.RemoveTask(ctx, task.ID))
	assert.ErrorIs(t, in.RemoveTask(ctx, task.ID), repository.ErrNotFound)
}

package service

import (
	"context"
	"time"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// RotationResolver assigns a due task to the participant who served it least
// recently and moves the task to its next occurrence.
type RotationResolver struct {
	tasks    *repository.TaskRepository
	notifier Notifier
	loc      *time.Location
}

func NewRotationResolver(tasks *repository.TaskRepository, notifier Notifier, loc *time.Location) *RotationResolver {
	return &RotationResolver{tasks: tasks, notifier: notifier, loc: loc}
}

// Fire advances a due task in one store transaction and then notifies the
// participant who was responsible. It reports false when the task is no
// longer due at o.Due, e.g. because another pass claimed it first.
func (r *RotationResolver) Fire(ctx context.Context, o model.Obligation, horizon, now time.Time) (bool, error) {
	return r.tasks.Fire(ctx, o.ID, o.Due, horizon, now, func(task model.Task, user model.User) {
		r.notifier.Notify(ctx, TaskMessage(task, user, r.loc))
	})
}

// ReminderDispatcher fires due reminders.
type ReminderDispatcher struct {
	reminders *repository.ReminderRepository
	notifier  Notifier
	loc       *time.Location
}

func NewReminderDispatcher(reminders *repository.ReminderRepository, notifier Notifier, loc *time.Location) *ReminderDispatcher {
	return &ReminderDispatcher{reminders: reminders, notifier: notifier, loc: loc}
}

// Fire deletes a due reminder in one store transaction and then notifies.
func (d *ReminderDispatcher) Fire(ctx context.Context, o model.Obligation, horizon, _ time.Time) (bool, error) {
	return d.reminders.Fire(ctx, o.ID, horizon, func(reminder model.Reminder) {
		d.notifier.Notify(ctx, ReminderMessage(reminder, d.loc))
	})
}

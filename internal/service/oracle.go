package service

import (
	"context"
	"fmt"
	"time"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// Oracle answers when obligations of a class fall due. It reads the store on
// every call and keeps no state of its own.
type Oracle struct {
	tasks     *repository.TaskRepository
	reminders *repository.ReminderRepository
	now       func() time.Time
}

func NewOracle(tasks *repository.TaskRepository, reminders *repository.ReminderRepository, now func() time.Time) *Oracle {
	if now == nil {
		now = time.Now
	}
	return &Oracle{tasks: tasks, reminders: reminders, now: now}
}

// NextDue returns the earliest due instant of the class. ok is false when no
// obligation of that class exists.
func (o *Oracle) NextDue(ctx context.Context, class model.Class) (due time.Time, ok bool, err error) {
	switch class {
	case model.ClassTask:
		return o.tasks.NextDue(ctx)
	case model.ClassReminder:
		return o.reminders.NextDue(ctx)
	default:
		return time.Time{}, false, fmt.Errorf("unknown obligation class %q", class)
	}
}

// TimeToNext is the time until NextDue, never negative.
func (o *Oracle) TimeToNext(ctx context.Context, class model.Class) (time.Duration, bool, error) {
	due, ok, err := o.NextDue(ctx, class)
	if err != nil || !ok {
		return 0, ok, err
	}
	d := due.Sub(o.now())
	if d < 0 {
		d = 0
	}
	return d, true, nil
}

// DueWithin lists obligations due no later than now+window, earliest first.
func (o *Oracle) DueWithin(ctx context.Context, class model.Class, window time.Duration) ([]model.Obligation, error) {
	return o.DueBefore(ctx, class, o.now().Add(window))
}

// DueBefore lists obligations due no later than horizon, earliest first.
func (o *Oracle) DueBefore(ctx context.Context, class model.Class, horizon time.Time) ([]model.Obligation, error) {
	switch class {
	case model.ClassTask:
		tasks, err := o.tasks.DueBefore(ctx, horizon)
		if err != nil {
			return nil, err
		}
		out := make([]model.Obligation, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, model.TaskObligation(t))
		}
		return out, nil
	case model.ClassReminder:
		reminders, err := o.reminders.DueBefore(ctx, horizon)
		if err != nil {
			return nil, err
		}
		out := make([]model.Obligation, 0, len(reminders))
		for _, r := range reminders {
			out = append(out, model.ReminderObligation(r))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown obligation class %q", class)
	}
}

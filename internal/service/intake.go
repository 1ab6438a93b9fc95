package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// Preempter is the early-wake side of a WakeScheduler.
type Preempter interface {
	Preempt() bool
}

// ImportResult counts the outcome of a calendar import.
type ImportResult struct {
	Imported int
	Skipped  int
	// Preempted is true when a running scheduler was asked for an early check.
	Preempted bool
}

// TaskInput describes a task to create.
type TaskInput struct {
	Description  string
	Due          time.Time
	Interval     int
	Participants []string
}

// Intake inserts new obligations and wakes the scheduler of their class early
// when the new item falls due before anything already stored.
type Intake struct {
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	reminders *repository.ReminderRepository
	oracle    *Oracle

	taskWake     Preempter
	reminderWake Preempter

	now func() time.Time
	log zerolog.Logger
}

func NewIntake(users *repository.UserRepository, tasks *repository.TaskRepository, reminders *repository.ReminderRepository, oracle *Oracle, now func() time.Time, log zerolog.Logger) *Intake {
	if now == nil {
		now = time.Now
	}
	return &Intake{users: users, tasks: tasks, reminders: reminders, oracle: oracle, now: now, log: log}
}

// AttachSchedulers registers the schedulers to preempt. Either may be nil,
// for example in one-shot CLI commands where nothing is running.
func (in *Intake) AttachSchedulers(taskWake, reminderWake Preempter) {
	in.taskWake = taskWake
	in.reminderWake = reminderWake
}

// ImportReminder stores a reminder unless at lies in the past. It reports
// whether the reminder was stored.
func (in *Intake) ImportReminder(ctx context.Context, description string, at time.Time) (bool, error) {
	before, hadBefore, err := in.oracle.NextDue(ctx, model.ClassReminder)
	if err != nil {
		return false, fmt.Errorf("next reminder: %w", err)
	}

	stored, err := in.insertReminder(ctx, description, at)
	if err != nil || !stored {
		return stored, err
	}

	in.maybePreempt(model.ClassReminder, in.reminderWake, at, before, hadBefore)
	return true, nil
}

// ImportCalendar stores one reminder per VEVENT in r, using SUMMARY as the
// description and DTSTART as the instant. Past events are skipped. The early
// wake decision is made once for the batch.
func (in *Intake) ImportCalendar(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult

	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return res, fmt.Errorf("parse calendar: %w", err)
	}

	before, hadBefore, err := in.oracle.NextDue(ctx, model.ClassReminder)
	if err != nil {
		return res, fmt.Errorf("next reminder: %w", err)
	}

	var earliest time.Time
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			in.log.Warn().Err(err).Str("uid", ev.Id()).Msg("event without usable start, skipped")
			res.Skipped++
			continue
		}
		summary := ""
		if prop := ev.GetProperty(ics.ComponentPropertySummary); prop != nil {
			summary = prop.Value
		}

		stored, err := in.insertReminder(ctx, summary, start)
		if err != nil {
			return res, err
		}
		if !stored {
			res.Skipped++
			continue
		}
		res.Imported++
		if earliest.IsZero() || start.Before(earliest) {
			earliest = start
		}
	}

	if res.Imported > 0 {
		res.Preempted = in.maybePreempt(model.ClassReminder, in.reminderWake, earliest, before, hadBefore)
	}
	in.log.Info().Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("calendar imported")
	return res, nil
}

// CreateTask inserts a task. A due date in the past is moved forward by whole
// intervals. No participants means every current user.
func (in *Intake) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, errors.New("task description is required")
	}
	if input.Interval <= 0 {
		return nil, repository.ErrInvalidInterval
	}

	participants := input.Participants
	if len(participants) == 0 {
		names, err := in.users.ListNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		participants = names
	}

	before, hadBefore, err := in.oracle.NextDue(ctx, model.ClassTask)
	if err != nil {
		return nil, fmt.Errorf("next task: %w", err)
	}

	now := in.now()
	due := model.FirstOccurrenceFrom(input.Due, now, input.Interval)
	task, err := in.tasks.Create(ctx, input.Description, due, input.Interval, participants, now)
	if err != nil {
		return nil, err
	}
	in.log.Info().Uint("id", task.ID).Str("desc", task.Description).Time("due", task.NextDueDate).
		Int("interval", task.Interval).Int("participants", len(participants)).Msg("task created")

	in.maybePreempt(model.ClassTask, in.taskWake, task.NextDueDate, before, hadBefore)
	return task, nil
}

// RemoveTask deletes a task and its participation rows.
func (in *Intake) RemoveTask(ctx context.Context, taskID uint) error {
	if err := in.tasks.Remove(ctx, taskID); err != nil {
		return err
	}
	in.log.Info().Uint("id", taskID).Msg("task removed")
	return nil
}

func (in *Intake) insertReminder(ctx context.Context, description string, at time.Time) (bool, error) {
	if at.Before(in.now()) {
		in.log.Debug().Str("desc", description).Time("at", at).Msg("reminder in the past, skipped")
		return false, nil
	}
	reminder, err := in.reminders.Create(ctx, description, at)
	if err != nil {
		return false, err
	}
	in.log.Info().Uint("id", reminder.ID).Str("desc", reminder.Description).Time("at", reminder.Date).Msg("reminder stored")
	return true, nil
}

// maybePreempt wakes the class scheduler when due precedes the earliest due
// instant observed before the insert. An empty class counts as later.
func (in *Intake) maybePreempt(class model.Class, p Preempter, due, before time.Time, hadBefore bool) bool {
	if p == nil {
		return false
	}
	if hadBefore && !due.Before(before) {
		return false
	}
	ok := p.Preempt()
	in.log.Debug().Str("class", string(class)).Time("due", due).Bool("running", ok).Msg("early wake requested")
	return ok
}

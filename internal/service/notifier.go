package service

import (
	"context"
	"fmt"
	"html"
	"time"

	"wgd/internal/model"
)

// Notifier delivers a message to the household channel. Delivery is
// fire-and-forget: implementations must not block on the network and report
// failures through their own logging.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string)

func (f NotifierFunc) Notify(ctx context.Context, text string) { f(ctx, text) }

const dueLayout = "Mon 02 Jan 15:04"

// TaskMessage is the text sent when a task becomes due.
func TaskMessage(task model.Task, user model.User, loc *time.Location) string {
	return fmt.Sprintf("Task due: <b>%s</b> for %s (%s)",
		html.EscapeString(user.Name), html.EscapeString(task.Description), formatDue(task.NextDueDate, loc))
}

// ReminderMessage is the text sent when a reminder becomes due.
func ReminderMessage(reminder model.Reminder, loc *time.Location) string {
	return fmt.Sprintf("Reminder: %s (%s)", html.EscapeString(reminder.Description), formatDue(reminder.Date, loc))
}

func formatDue(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dueLayout)
}

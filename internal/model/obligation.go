package model

import "time"

// Class identifies a kind of obligation.
type Class string

const (
	ClassTask     Class = "task"
	ClassReminder Class = "reminder"
)

// Obligation is the class-independent view of something with a due instant.
type Obligation struct {
	Class       Class
	ID          uint
	Description string
	Due         time.Time
}

// TaskObligation converts a task.
func TaskObligation(t Task) Obligation {
	return Obligation{Class: ClassTask, ID: t.ID, Description: t.Description, Due: t.NextDueDate}
}

// ReminderObligation converts a reminder.
func ReminderObligation(r Reminder) Obligation {
	return Obligation{Class: ClassReminder, ID: r.ID, Description: r.Description, Due: r.Date}
}

package model

import "time"

// Task is a recurring chore rotated among its participants.
type Task struct {
	ID          uint      `gorm:"primaryKey"`
	Description string    `gorm:"not null"`
	NextDueDate time.Time `gorm:"index;not null"`
	Interval    int       `gorm:"not null"` // days
	CreatedAt   time.Time
}

// TaskParticipation links a user to a task and records when that user last
// took responsibility for it.
type TaskParticipation struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"index;not null"`
	TaskID           uint      `gorm:"index;not null"`
	LastParticipated time.Time `gorm:"not null"`
}

// AdvanceDue returns the due date one interval after due. Days are counted in
// loc, so the wall-clock time survives a DST change. A nil loc means UTC.
func AdvanceDue(due time.Time, intervalDays int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return due.In(loc).AddDate(0, 0, intervalDays)
}

// FirstOccurrenceFrom moves due forward by whole intervals until it is not
// before now, counting days in due's own location. A due date already in the
// future is returned unchanged.
func FirstOccurrenceFrom(due, now time.Time, intervalDays int) time.Time {
	if intervalDays <= 0 {
		return due
	}
	for due.Before(now) {
		due = AdvanceDue(due, intervalDays, due.Location())
	}
	return due
}

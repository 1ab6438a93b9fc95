package model

import "time"

// Reminder is a one-shot notification. It is deleted once it fires.
type Reminder struct {
	ID          uint      `gorm:"primaryKey"`
	Description string    `gorm:"not null"`
	Date        time.Time `gorm:"index;not null"`
	CreatedAt   time.Time
}

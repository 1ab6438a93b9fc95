package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"wgd/internal/model"
)

// ReminderRepository persists one-shot reminders.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) Create(ctx context.Context, description string, at time.Time) (*model.Reminder, error) {
	reminder := model.Reminder{Description: strings.TrimSpace(description), Date: at.UTC()}
	if err := r.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		return nil, &TxError{Op: "create reminder", Err: err}
	}
	return &reminder, nil
}

func (r *ReminderRepository) Remove(ctx context.Context, reminderID uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Reminder{}, reminderID)
	if res.Error != nil {
		return &TxError{Op: "remove reminder", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReminderRepository) ListAll(ctx context.Context) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Order("date ASC, id ASC").Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *ReminderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Reminder{}).Count(&n).Error
	return n, err
}

// NextDue returns the earliest reminder date.
func (r *ReminderRepository) NextDue(ctx context.Context) (time.Time, bool, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Order("date ASC, id ASC").Limit(1).Find(&reminders).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(reminders) == 0 {
		return time.Time{}, false, nil
	}
	return reminders[0].Date, true, nil
}

// DueBefore lists reminders due at or before horizon, earliest first.
func (r *ReminderRepository) DueBefore(ctx context.Context, horizon time.Time) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := r.db.WithContext(ctx).Where("date <= ?", horizon.UTC()).
		Order("date ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

// Fire claims a due reminder: the row is deleted in one transaction and
// notify runs once that commits. fired is false if another pass got there
// first.
func (r *ReminderRepository) Fire(ctx context.Context, reminderID uint, horizon time.Time, notify func(model.Reminder)) (fired bool, err error) {
	var reminder model.Reminder
	err = transact(ctx, r.db, "fire reminder", func(tx *gorm.DB) error {
		var reminders []model.Reminder
		if err := tx.Where("id = ? AND date <= ?", reminderID, horizon.UTC()).Limit(1).Find(&reminders).Error; err != nil {
			return err
		}
		if len(reminders) == 0 {
			return nil
		}
		reminder = reminders[0]
		if err := tx.Delete(&model.Reminder{}, reminderID).Error; err != nil {
			return err
		}
		fired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if fired {
		notify(reminder)
	}
	return fired, nil
}

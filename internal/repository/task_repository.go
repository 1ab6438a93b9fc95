package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"wgd/internal/model"
)

// TaskRepository persists tasks and their rotation state. Intervals are
// counted in whole days of loc.
type TaskRepository struct {
	db  *gorm.DB
	loc *time.Location
}

func NewTaskRepository(db *gorm.DB, loc *time.Location) *TaskRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &TaskRepository{db: db, loc: loc}
}

// Create inserts the task and one participation row per named user, all
// stamped with now. Every name must resolve; otherwise nothing is written and
// *UnknownUserError names the first miss.
func (r *TaskRepository) Create(ctx context.Context, description string, due time.Time, interval int, participants []string, now time.Time) (*model.Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	task := model.Task{
		Description: strings.TrimSpace(description),
		NextDueDate: due.UTC(),
		Interval:    interval,
	}
	err := transact(ctx, r.db, "create task", func(tx *gorm.DB) error {
		members := make([]model.User, 0, len(participants))
		seen := make(map[uint]bool, len(participants))
		for _, name := range participants {
			var user model.User
			err := tx.Where("normalized_name = ?", model.NormalizeName(name)).Order("id ASC").First(&user).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &UnknownUserError{Name: name}
			}
			if err != nil {
				return err
			}
			if !seen[user.ID] {
				seen[user.ID] = true
				members = append(members, user)
			}
		}

		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		for _, member := range members {
			part := model.TaskParticipation{UserID: member.ID, TaskID: task.ID, LastParticipated: now.UTC()}
			if err := tx.Create(&part).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListAll returns every task, earliest due first.
func (r *TaskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("next_due_date ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// NextDue returns the earliest due date of any task.
func (r *TaskRepository) NextDue(ctx context.Context) (time.Time, bool, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("next_due_date ASC, id ASC").Limit(1).Find(&tasks).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(tasks) == 0 {
		return time.Time{}, false, nil
	}
	return tasks[0].NextDueDate, true, nil
}

// DueBefore lists tasks due at or before horizon, earliest first.
func (r *TaskRepository) DueBefore(ctx context.Context, horizon time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("next_due_date <= ?", horizon.UTC()).
		Order("next_due_date ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// NextResponsible returns the participant who served the task least recently.
func (r *TaskRepository) NextResponsible(ctx context.Context, taskID uint) (*model.User, error) {
	return nextResponsible(r.db.WithContext(ctx), taskID)
}

// Participants returns the task's users in rotation order.
func (r *TaskRepository) Participants(ctx context.Context, taskID uint) ([]model.User, error) {
	var users []model.User
	if err := rotationQuery(r.db.WithContext(ctx), taskID).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Fire claims one due task. Inside a single transaction it re-reads the row,
// picks the responsible user and advances the task; notify runs only after
// the commit. The claim holds only while the row is still due at the instant
// the caller observed and no later than horizon, so of several passes working
// from the same due list exactly one fires. fired is false otherwise.
func (r *TaskRepository) Fire(ctx context.Context, taskID uint, due, horizon, now time.Time, notify func(model.Task, model.User)) (fired bool, err error) {
	var (
		task model.Task
		user *model.User
	)
	err = transact(ctx, r.db, "fire task", func(tx *gorm.DB) error {
		var tasks []model.Task
		if err := tx.Where("id = ? AND next_due_date <= ?", taskID, horizon.UTC()).Limit(1).Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 || !tasks[0].NextDueDate.Equal(due) {
			return nil
		}
		task = tasks[0]

		var err error
		user, err = nextResponsible(tx, task.ID)
		if err != nil {
			return err
		}
		claimed := task
		if err := r.advance(tx, &claimed, user.ID, now); err != nil {
			return err
		}
		fired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if fired {
		notify(task, *user)
	}
	return fired, nil
}

// Remove deletes a task together with its participation rows.
func (r *TaskRepository) Remove(ctx context.Context, taskID uint) error {
	return transact(ctx, r.db, "remove task", func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&model.TaskParticipation{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Task{}, taskID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func rotationQuery(db *gorm.DB, taskID uint) *gorm.DB {
	return db.Model(&model.User{}).
		Select("users.*").
		Joins("JOIN task_participations ON task_participations.user_id = users.id").
		Where("task_participations.task_id = ?", taskID).
		Order("task_participations.last_participated ASC, task_participations.id ASC")
}

func nextResponsible(db *gorm.DB, taskID uint) (*model.User, error) {
	var users []model.User
	if err := rotationQuery(db, taskID).Limit(1).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNoParticipants)
	}
	return &users[0], nil
}

func (r *TaskRepository) advance(tx *gorm.DB, task *model.Task, userID uint, now time.Time) error {
	task.NextDueDate = model.AdvanceDue(task.NextDueDate, task.Interval, r.loc).UTC()
	if err := tx.Model(task).Update("next_due_date", task.NextDueDate).Error; err != nil {
		return err
	}
	res := tx.Model(&model.TaskParticipation{}).
		Where("task_id = ? AND user_id = ?", task.ID, userID).
		Update("last_participated", now.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d user %d: %w", task.ID, userID, ErrNoParticipants)
	}
	return nil
}

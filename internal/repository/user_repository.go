package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"wgd/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create adds a user. Names that normalize to an existing user are rejected.
func (r *UserRepository) Create(ctx context.Context, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	normalized := model.NormalizeName(name)
	if normalized == "" {
		return nil, ErrInvalidName
	}

	user := model.User{Name: name, NormalizedName: normalized}
	err := transact(ctx, r.db, "create user", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("normalized_name = ?", normalized).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%q: %w", name, ErrUserExists)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByName looks a user up by normalized name.
func (r *UserRepository) FindByName(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("normalized_name = ?", model.NormalizeName(name)).Order("id ASC").First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Remove deletes the user's participation rows and then the user.
func (r *UserRepository) Remove(ctx context.Context, userID uint) error {
	return transact(ctx, r.db, "remove user", func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.TaskParticipation{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.User{}, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListNames returns display names in creation order.
func (r *UserRepository) ListNames(ctx context.Context) ([]string, error) {
	users, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

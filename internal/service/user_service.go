package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// UserService manages the household members that tasks rotate among.
type UserService struct {
	users *repository.UserRepository
	log   zerolog.Logger
}

func NewUserService(users *repository.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

func (s *UserService) Add(ctx context.Context, name string) (*model.User, error) {
	user, err := s.users.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("id", user.ID).Str("name", user.Name).Msg("user added")
	return user, nil
}

// Remove deletes the user found by normalized name together with their
// task participations.
func (s *UserService) Remove(ctx context.Context, name string) error {
	user, err := s.users.FindByName(ctx, name)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("user %q: %w", name, repository.ErrNotFound)
		}
		return err
	}
	if err := s.users.Remove(ctx, user.ID); err != nil {
		return err
	}
	s.log.Info().Uint("id", user.ID).Str("name", user.Name).Msg("user removed")
	return nil
}

func (s *UserService) ListNames(ctx context.Context) ([]string, error) {
	return s.users.ListNames(ctx)
}

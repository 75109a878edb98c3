package auth

import (
	"context"
	"errors"
	"fmt"
)

// Service bundles credential verification over the user and lab
// repositories.
type Service struct {
	users UserRepository
	labs  LabRepository
}

// NewService creates an auth service over the given repositories.
func NewService(users UserRepository, labs LabRepository) *Service {
	return &Service{users: users, labs: labs}
}

// VerifyCredentials checks an email/password pair and returns the account
// with its lab. Unknown emails and wrong passwords both map to
// ErrInvalidCredentials so the response does not leak which one failed.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*User, *Lab, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	lab, err := s.labs.GetByID(ctx, user.LabID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up lab for user %s: %w", user.ID, err)
	}

	return user, lab, nil
}

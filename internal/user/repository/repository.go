package repository

import (
	"context"

	"session-control-plane/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail returns the user for email, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateStatus flips the user's status (active/disabled).
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
}

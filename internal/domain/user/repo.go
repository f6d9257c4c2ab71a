package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrValidation     = errors.New("invalid user")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrRoleImmutable  = errors.New("role cannot be changed after creation")
	ErrSelfDelete     = errors.New("users cannot delete themselves")
)

// Repository defines the persistence interface for system users. Create and
// Update write the user row and its clinic memberships atomically.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*User, int, error)
}

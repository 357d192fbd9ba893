package users

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ErrUserNotFound indicates that no user matched the lookup.
var ErrUserNotFound = fmt.Errorf("users: user %w", shared.ErrNotFound)

// ErrEmailTaken is returned when creating a user with an existing email.
var ErrEmailTaken = fmt.Errorf("%w: email already registered", shared.ErrValidation)

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateInput carries the fields required to provision a user.
type CreateInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	RoleIDs  []int64 `json:"role_ids" validate:"dive,gt=0"`
}

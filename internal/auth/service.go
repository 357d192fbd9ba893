package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// UserRepository is the subset of users.Repository needed for authentication.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
	Roles(ctx context.Context, userID int64) ([]rbac.Role, error)
}

// Sessions tracks issued token ids.
type Sessions interface {
	Register(ctx context.Context, jti string, userID int64, ttl time.Duration) error
	Active(ctx context.Context, jti string, userID int64) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

// Token is returned by Login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service wraps authentication business rules.
type Service struct {
	users    UserRepository
	tokens   *TokenIssuer
	sessions Sessions
}

// NewService constructs a new Service.
func NewService(users UserRepository, tokens *TokenIssuer, sessions Sessions) *Service {
	return &Service{users: users, tokens: tokens, sessions: sessions}
}

// Login validates email/password credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Token{}, shared.ErrInvalidCredentials
		}
		return Token{}, err
	}
	if !user.IsActive {
		return Token{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, shared.ErrInvalidCredentials
	}
	signed, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Token{}, err
	}
	if err := s.sessions.Register(ctx, claims.ID, user.ID, s.tokens.TTL()); err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the token identified by claims.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	return s.sessions.Revoke(ctx, claims.ID)
}

// Resolve verifies raw, checks that it has not been revoked and that the user
// is still active, then builds the request principal from current roles.
func (s *Service) Resolve(ctx context.Context, raw string) (rbac.Principal, Claims, error) {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return rbac.Principal{}, Claims{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return rbac.Principal{}, Claims{}, err
	}
	active, err := s.sessions.Active(ctx, claims.ID, userID)
	if err != nil {
		return rbac.Principal{}, Claims{}, err
	}
	if !active {
		return rbac.Principal{}, Claims{}, fmt.Errorf("%w: token revoked", shared.ErrUnauthenticated)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, Claims{}, fmt.Errorf("%w: unknown user", shared.ErrUnauthenticated)
		}
		return rbac.Principal{}, Claims{}, err
	}
	if !user.IsActive {
		return rbac.Principal{}, Claims{}, fmt.Errorf("%w: user disabled", shared.ErrUnauthenticated)
	}
	roles, err := s.users.Roles(ctx, userID)
	if err != nil {
		return rbac.Principal{}, Claims{}, fmt.Errorf("auth: load roles: %w", err)
	}
	return rbac.NewPrincipal(userID, roles), claims, nil
}

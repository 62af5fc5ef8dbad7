// ABOUTME: User account administration on top of the user store
// ABOUTME: Create, update, bulk role changes, deletes and first-admin bootstrap

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/weather-gateway/internal/store"
)

var (
	// ErrInvalidUser is returned when a user record is missing required fields.
	ErrInvalidUser = errors.New("invalid user")

	// ErrAlreadyBootstrapped is returned by Bootstrap when users already exist.
	ErrAlreadyBootstrapped = errors.New("users already exist")
)

// NewUser holds the fields of an account to create.
type NewUser struct {
	Email     string
	Password  store.Password
	Role      store.RoleName
	FirstName string
	LastName  string
}

// UserUpdate holds the replacement values for an existing account. An empty
// Email, Role or Password keeps the stored value since none of them may be
// blank. Nil name fields keep the stored name; a non-nil empty name clears it.
type UserUpdate struct {
	ID        string
	Email     string
	Password  store.Password
	Role      store.RoleName
	FirstName *string
	LastName  *string
}

// CreateUser stores a new account with no active session. createdDate and
// lastAccessed are set to now.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*store.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidRole, in.Role)
	}

	password, err := hashPassword(in.Password, s.hashCost)
	if errors.Is(err, ErrEmptyPassword) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &store.User{
		Email:        email,
		Password:     password,
		Role:         in.Role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedDate:  now,
		LastAccessed: now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// UpdateUser applies in to the stored account and returns the result.
// Returns store.ErrNotFound if the user doesn't exist.
func (s *Service) UpdateUser(ctx context.Context, in UserUpdate) (*store.User, error) {
	user, err := s.users.GetUser(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if email := strings.TrimSpace(in.Email); email != "" {
		user.Email = email
	}
	if in.Role != "" {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: %q", store.ErrInvalidRole, in.Role)
		}
		user.Role = in.Role
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if !in.Password.IsZero() {
		user.Password, err = hashPassword(in.Password, s.hashCost)
		if err != nil {
			return nil, err
		}
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info("user updated", "user_id", user.ID)
	return user, nil
}

// SetRolesByCreatedRange sets role on every user created strictly between
// from and to and returns how many records changed.
func (s *Service) SetRolesByCreatedRange(ctx context.Context, from, to time.Time, role store.RoleName) (int, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %q", store.ErrInvalidRole, role)
	}

	n, err := s.users.SetUserRolesByCreatedRange(ctx, from, to, role)
	if err != nil {
		return 0, fmt.Errorf("updating roles: %w", err)
	}

	s.logger.Info("user roles updated", "role", role, "from", from, "to", to, "count", n)
	return n, nil
}

// DeleteUser removes one user and returns the deleted count.
func (s *Service) DeleteUser(ctx context.Context, id string) (int, error) {
	n, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("user deleted", "user_id", id, "count", n)
	return n, nil
}

// DeleteUsers removes the listed users and returns how many existed.
func (s *Service) DeleteUsers(ctx context.Context, ids []string) (int, error) {
	n, err := s.users.DeleteUsers(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting users: %w", err)
	}
	s.logger.Info("users deleted", "requested", len(ids), "count", n)
	return n, nil
}

// GetUser returns one user. Returns store.ErrNotFound if it doesn't exist.
func (s *Service) GetUser(ctx context.Context, id string) (*store.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]*store.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Bootstrap creates the first admin account. It refuses to run once any user
// exists.
func (s *Service) Bootstrap(ctx context.Context, in NewUser) (*store.User, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if n > 0 {
		return nil, ErrAlreadyBootstrapped
	}

	in.Role = store.RoleAdmin
	return s.CreateUser(ctx, in)
}

// ABOUTME: Session lifecycle: login issues a fresh token, logout clears it
// ABOUTME: One active session per user; a new login supersedes the previous token

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/store"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service manages logins and user accounts.
type Service struct {
	users    store.UserStore
	issuer   auth.TokenIssuer
	hashCost int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a session service. A nil issuer uses auth.RandomIssuer.
func New(users store.UserStore, issuer auth.TokenIssuer, logger *slog.Logger, opts ...Option) *Service {
	if issuer == nil {
		issuer = auth.RandomIssuer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:    users,
		issuer:   issuer,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		logger:   logger.With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the password of the user with the given email and, on
// success, stores and returns a new session token. Any previous token of that
// user stops working.
//
// The email lookup and the token write are separate statements, so two
// concurrent logins for one account both succeed and the last write wins.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		checkPassword(store.Password{}, password)
		s.logger.Info("login failed", "reason", "unknown email")
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if !checkPassword(user.Password, password) {
		s.logger.Info("login failed", "reason", "wrong password", "user_id", user.ID)
		return "", ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	if err := s.users.SetUserAuthKey(ctx, user.ID, token, s.now()); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)
	return token, nil
}

// Logout clears the session holding token. It fails with
// auth.ErrMissingToken or auth.ErrInvalidToken when there is no such session.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return auth.ErrMissingToken
	}

	user, err := s.users.GetUserByAuthKey(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return auth.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("looking up session: %w", err)
	}

	err = s.users.SetUserAuthKey(ctx, user.ID, "", s.now())
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between lookup and clear; the session is gone either way.
		return nil
	}
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	s.logger.Info("user logged out", "user_id", user.ID)
	return nil
}

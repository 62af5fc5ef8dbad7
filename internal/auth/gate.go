// ABOUTME: Authorization gate run before every protected operation
// ABOUTME: Resolves a session token to a user on every call and checks the role against an allow list

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/weather-gateway/internal/store"
)

// authError carries a client-facing message and unwraps to its kind.
type authError struct {
	msg  string
	kind error
}

func (e *authError) Error() string { return e.msg }
func (e *authError) Unwrap() error { return e.kind }

var (
	// ErrUnauthenticated is matched by every authentication failure.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrMissingToken means the request carried no session token.
	ErrMissingToken error = &authError{msg: "missing token", kind: ErrUnauthenticated}

	// ErrInvalidToken means no user holds the token, or it failed verification.
	ErrInvalidToken error = &authError{msg: "invalid or expired token", kind: ErrUnauthenticated}

	// ErrForbidden means the token is valid but the role is not allowed.
	ErrForbidden = errors.New("forbidden")
)

// UserLookup is what the gate needs from storage.
type UserLookup interface {
	GetUserByAuthKey(ctx context.Context, authKey string) (*store.User, error)
}

// Gate authorizes session tokens against role allow lists.
type Gate struct {
	users    UserLookup
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewGate creates a gate. verifier may be nil, in which case tokens are only
// checked by store lookup.
func NewGate(users UserLookup, verifier TokenVerifier, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		users:    users,
		verifier: verifier,
		logger:   logger.With("component", "auth"),
	}
}

// Authorize resolves token to a user and checks that the user's role is in
// allowed. Every call performs a fresh lookup, so a cleared token fails on
// the next call.
func (g *Gate) Authorize(ctx context.Context, token string, allowed store.Roles) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	var subject string
	if g.verifier != nil {
		sub, err := g.verifier.Verify(token)
		if err != nil {
			g.logger.Debug("token verification failed", "error", err)
			return nil, ErrInvalidToken
		}
		subject = sub
	}

	user, err := g.users.GetUserByAuthKey(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	if subject != "" && subject != user.ID {
		g.logger.Warn("token subject does not match session owner", "user_id", user.ID)
		return nil, ErrInvalidToken
	}

	if !allowed.Contains(user.Role) {
		g.logger.Debug("role not allowed", "user_id", user.ID, "role", user.Role)
		return nil, ErrForbidden
	}

	return &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

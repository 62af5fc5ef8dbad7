// ABOUTME: Hash-once password policy for user records
// ABOUTME: Plaintext values are bcrypt hashed, already hashed values pass through untouched

package session

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/weather-gateway/internal/store"
)

// ErrEmptyPassword is returned when a plaintext password is empty.
var ErrEmptyPassword = errors.New("password must not be empty")

// dummyHash is compared against when no user matches, so that a login for
// an unknown email costs the same as a wrong password.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword returns p hashed with bcrypt at the default cost. A value that
// is already hashed is returned unchanged.
func HashPassword(p store.Password) (store.Password, error) {
	return hashPassword(p, bcrypt.DefaultCost)
}

func hashPassword(p store.Password, cost int) (store.Password, error) {
	if p.IsHashed() {
		return p, nil
	}
	if p.IsZero() {
		return store.Password{}, ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Value()), cost)
	if err != nil {
		return store.Password{}, fmt.Errorf("hashing password: %w", err)
	}
	return store.HashedPassword(string(hash)), nil
}

// checkPassword compares plaintext against a stored hash in constant effort.
func checkPassword(stored store.Password, plaintext string) bool {
	if !stored.IsHashed() || stored.IsZero() {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plaintext))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored.Value()), []byte(plaintext)) == nil
}

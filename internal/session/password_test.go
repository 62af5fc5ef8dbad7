// ABOUTME: Tests for the hash-once password policy
// ABOUTME: Verifies plaintext is hashed, hashes pass through and comparison is strict

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/weather-gateway/internal/store"
)

func TestHashPassword_Plaintext(t *testing.T) {
	hashed, err := hashPassword(store.PlaintextPassword("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, hashed.IsHashed())
	assert.NotEqual(t, "correct horse", hashed.Value())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hashed.Value()), []byte("correct horse")))
}

func TestHashPassword_AlreadyHashedIsUntouched(t *testing.T) {
	in := store.HashedPassword("$2a$10$already-a-hash")
	out, err := HashPassword(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHashPassword_HashShapedPlaintextIsHashed(t *testing.T) {
	// A plaintext that happens to look like a bcrypt hash is still plaintext.
	in := store.PlaintextPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
	out, err := hashPassword(in, bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, in.Value(), out.Value())
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := hashPassword(store.PlaintextPassword(""), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestCheckPassword(t *testing.T) {
	hashed, err := hashPassword(store.PlaintextPassword("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, checkPassword(hashed, "s3cret"))
	assert.False(t, checkPassword(hashed, "S3cret"))
	assert.False(t, checkPassword(store.Password{}, "s3cret"))
	assert.False(t, checkPassword(store.PlaintextPassword("s3cret"), "s3cret"), "plaintext is never a valid stored value")
}

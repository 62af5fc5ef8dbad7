// ABOUTME: Tests for the tagged Password value
// ABOUTME: Ensures hash state is explicit and never leaks through fmt

package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassword(t *testing.T) {
	plain := PlaintextPassword("$2a$10$looks-like-a-hash")
	assert.False(t, plain.IsHashed(), "hash state is never inferred from the value")
	assert.Equal(t, "$2a$10$looks-like-a-hash", plain.Value())

	hashed := HashedPassword("abc")
	assert.True(t, hashed.IsHashed())
	assert.False(t, hashed.IsZero())

	var zero Password
	assert.True(t, zero.IsZero())
	assert.False(t, zero.IsHashed())
}

func TestPassword_Redacted(t *testing.T) {
	u := User{Email: "a@b.com", Password: PlaintextPassword("hunter2")}
	assert.NotContains(t, fmt.Sprintf("%v", u), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%+v", u), "hunter2")
	assert.Equal(t, "[hashed]", HashedPassword("secret-hash").String())
}

// ABOUTME: Tests for user persistence in SQLiteStore
// ABOUTME: Covers lookups, hash enforcement, session tokens, bulk role updates and deletes

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(email string, role RoleName, created time.Time) *User {
	return &User{
		Email:        email,
		Password:     HashedPassword("$2a$10$abcdefghijklmnopqrstuv"),
		Role:         role,
		FirstName:    "Test",
		LastName:     "User",
		CreatedDate:  created,
		LastAccessed: created,
	}
}

func mustCreateUser(t *testing.T, s UserStore, u *User) *User {
	t.Helper()
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newTestUser("a@b.com", RoleStudent, created)
	u.ID = "caller-supplied"
	u.AuthKey = ""
	require.NoError(t, store.CreateUser(ctx, u))
	assert.NotEqual(t, "caller-supplied", u.ID)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, RoleStudent, got.Role)
	assert.Equal(t, "Test", got.FirstName)
	assert.Equal(t, "User", got.LastName)
	assert.True(t, got.Password.IsHashed())
	assert.Equal(t, u.Password.Value(), got.Password.Value())
	assert.True(t, created.Equal(got.CreatedDate))
	assert.Empty(t, got.AuthKey)
}

func TestCreateUser_RejectsPlaintextPassword(t *testing.T) {
	store := setupTestStore(t)

	u := newTestUser("a@b.com", RoleStudent, time.Now())
	u.Password = PlaintextPassword("hunter2")
	err := store.CreateUser(context.Background(), u)
	assert.ErrorIs(t, err, ErrPasswordNotHashed)

	n, err := store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateUser_InvalidRole(t *testing.T) {
	store := setupTestStore(t)
	err := store.CreateUser(context.Background(), newTestUser("a@b.com", "owner", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store := setupTestStore(t)
	mustCreateUser(t, store, newTestUser("a@b.com", RoleStudent, time.Now()))

	err := store.CreateUser(context.Background(), newTestUser("a@b.com", RoleAdmin, time.Now()))
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestGetUser_Lookups(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	u := mustCreateUser(t, store, newTestUser("a@b.com", RoleAdmin, time.Now()))
	require.NoError(t, store.SetUserAuthKey(ctx, u.ID, "token-1", time.Now()))

	byEmail, err := store.GetUserByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byKey, err := store.GetUserByAuthKey(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byKey.ID)
	assert.Equal(t, "token-1", byKey.AuthKey)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetUserByEmail(ctx, "A@B.COM")
	assert.ErrorIs(t, err, ErrNotFound, "email lookups are exact")
	_, err = store.GetUserByAuthKey(ctx, "token-2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetUserByAuthKey(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound, "empty key never matches")
}

func TestSetUserAuthKey(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	u := mustCreateUser(t, store, newTestUser("a@b.com", RoleStudent, time.Now().Add(-time.Hour)))
	accessed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.SetUserAuthKey(ctx, u.ID, "first", accessed))
	require.NoError(t, store.SetUserAuthKey(ctx, u.ID, "second", accessed))

	_, err := store.GetUserByAuthKey(ctx, "first")
	assert.ErrorIs(t, err, ErrNotFound, "previous token must be superseded")

	got, err := store.GetUserByAuthKey(ctx, "second")
	require.NoError(t, err)
	assert.True(t, accessed.Equal(got.LastAccessed))

	require.NoError(t, store.SetUserAuthKey(ctx, u.ID, "", accessed))
	_, err = store.GetUserByAuthKey(ctx, "second")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetUserAuthKey(ctx, "missing", "x", accessed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserAuthKey_ClearedKeysDoNotCollide(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := mustCreateUser(t, store, newTestUser("a@b.com", RoleStudent, time.Now()))
	b := mustCreateUser(t, store, newTestUser("c@d.com", RoleStudent, time.Now()))

	// Both users without a session share NULL, which the partial index allows.
	require.NoError(t, store.SetUserAuthKey(ctx, a.ID, "", time.Now()))
	require.NoError(t, store.SetUserAuthKey(ctx, b.ID, "", time.Now()))

	require.NoError(t, store.SetUserAuthKey(ctx, a.ID, "shared", time.Now()))
	err := store.SetUserAuthKey(ctx, b.ID, "shared", time.Now())
	assert.Error(t, err, "a token identifies at most one user")
}

func TestUpdateUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	u := mustCreateUser(t, store, newTestUser("a@b.com", RoleStudent, time.Now()))

	u.Email = "new@b.com"
	u.Role = RoleAdmin
	u.FirstName = "Ada"
	u.Password = HashedPassword("$2a$10$zyxwvutsrqponmlkjihgfe")
	require.NoError(t, store.UpdateUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", got.Email)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "$2a$10$zyxwvutsrqponmlkjihgfe", got.Password.Value())

	t.Run("missing", func(t *testing.T) {
		missing := newTestUser("x@y.com", RoleStudent, time.Now())
		missing.ID = "missing"
		assert.ErrorIs(t, store.UpdateUser(ctx, missing), ErrNotFound)
	})

	t.Run("plaintext", func(t *testing.T) {
		c := *got
		c.Password = PlaintextPassword("nope")
		assert.ErrorIs(t, store.UpdateUser(ctx, &c), ErrPasswordNotHashed)
	})

	t.Run("email taken", func(t *testing.T) {
		mustCreateUser(t, store, newTestUser("other@b.com", RoleStudent, time.Now()))
		c := *got
		c.Email = "other@b.com"
		assert.ErrorIs(t, store.UpdateUser(ctx, &c), ErrEmailExists)
	})
}

func TestSetUserRolesByCreatedRange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	from := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)

	atFrom := mustCreateUser(t, store, newTestUser("from@x.com", RoleStudent, from))
	inside1 := mustCreateUser(t, store, newTestUser("in1@x.com", RoleStudent, from.AddDate(0, 2, 0)))
	inside2 := mustCreateUser(t, store, newTestUser("in2@x.com", RoleStation, from.AddDate(0, 6, 0)))
	alreadyAdmin := mustCreateUser(t, store, newTestUser("in3@x.com", RoleAdmin, from.AddDate(0, 7, 0)))
	atTo := mustCreateUser(t, store, newTestUser("to@x.com", RoleStudent, to))

	n, err := store.SetUserRolesByCreatedRange(ctx, from, to, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{inside1.ID, inside2.ID, alreadyAdmin.ID} {
		u, err := store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, u.Role)
	}
	for _, id := range []string{atFrom.ID, atTo.ID} {
		u, err := store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, RoleStudent, u.Role, "bounds are exclusive")
	}

	n, err = store.SetUserRolesByCreatedRange(ctx, from, to, RoleAdmin)
	require.NoError(t, err)
	assert.Zero(t, n, "re-applying changes nothing")

	_, err = store.SetUserRolesByCreatedRange(ctx, from, to, "owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestDeleteUsers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := mustCreateUser(t, store, newTestUser("a@x.com", RoleStudent, time.Now()))
	b := mustCreateUser(t, store, newTestUser("b@x.com", RoleStudent, time.Now()))
	c := mustCreateUser(t, store, newTestUser("c@x.com", RoleStudent, time.Now()))

	n, err := store.DeleteUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "deleting a missing user is not an error")

	n, err = store.DeleteUsers(ctx, []string{b.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteUsers(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, c.ID, users[0].ID)
}

func TestDeleteUsers_ManyIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := mustCreateUser(t, store, newTestUser("first@x.com", RoleStudent, time.Now()))
	last := mustCreateUser(t, store, newTestUser("last@x.com", RoleStudent, time.Now()))
	kept := mustCreateUser(t, store, newTestUser("kept@x.com", RoleStudent, time.Now()))

	// More ids than SQLite accepts as bound variables in one statement.
	ids := []string{first.ID}
	for i := 0; i < 40000; i++ {
		ids = append(ids, fmt.Sprintf("missing-%d", i))
	}
	ids = append(ids, last.ID, first.ID)

	n, err := store.DeleteUsers(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, kept.ID, users[0].ID)
}

func TestListUsers_OrderedByCreation(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	mustCreateUser(t, store, newTestUser("late@x.com", RoleStudent, base.Add(2*time.Hour)))
	mustCreateUser(t, store, newTestUser("early@x.com", RoleStudent, base))

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "early@x.com", users[0].Email)
	assert.Equal(t, "late@x.com", users[1].Email)
}

// ABOUTME: User persistence for SQLiteStore
// ABOUTME: Handles accounts, the per-user session token and bulk role/delete operations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, role, first_name, last_name,
	created_date, last_accessed, auth_key`

func scanUser(row rowScanner) (*User, error) {
	var u User
	var hash, role, createdStr, accessedStr string
	var authKey sql.NullString

	err := row.Scan(
		&u.ID,
		&u.Email,
		&hash,
		&role,
		&u.FirstName,
		&u.LastName,
		&createdStr,
		&accessedStr,
		&authKey,
	)
	if err != nil {
		return nil, err
	}

	u.Password = HashedPassword(hash)
	u.Role = RoleName(role)
	u.AuthKey = authKey.String

	u.CreatedDate, err = parseTime(createdStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_date: %w", err)
	}
	u.LastAccessed, err = parseTime(accessedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_accessed: %w", err)
	}

	return &u, nil
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func validateUser(user *User) error {
	if !user.Password.IsHashed() {
		return ErrPasswordNotHashed
	}
	if !user.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
	}
	return nil
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by exact email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

// GetUserByAuthKey retrieves the user holding the given session token.
// An empty key never matches.
func (s *SQLiteStore) GetUserByAuthKey(ctx context.Context, authKey string) (*User, error) {
	if authKey == "" {
		return nil, ErrNotFound
	}
	return s.getUserWhere(ctx, "auth_key = ?", authKey)
}

// ListUsers returns every user ordered by creation date.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_date ASC, email ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

// CountUsers returns the number of stored users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// CreateUser inserts a user under a fresh ID, written back into user.ID.
// The password must already be hashed.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	user.ID = uuid.NewString()
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Password.Value(),
		string(user.Role),
		user.FirstName,
		user.LastName,
		formatTime(user.CreatedDate),
		formatTime(user.LastAccessed),
		nullString(user.AuthKey),
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "role", user.Role)
	return nil
}

// UpdateUser replaces every mutable field of the user identified by user.ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	query := `
		UPDATE users
		SET email = ?, password_hash = ?, role = ?, first_name = ?, last_name = ?,
			created_date = ?, last_accessed = ?, auth_key = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		user.Email,
		user.Password.Value(),
		string(user.Role),
		user.FirstName,
		user.LastName,
		formatTime(user.CreatedDate),
		formatTime(user.LastAccessed),
		nullString(user.AuthKey),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return ErrEmailExists
		}
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated user", "id", user.ID)
	return nil
}

// SetUserAuthKey sets or clears (empty authKey) the session token of a user
// and stamps its last access time in a single statement.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserAuthKey(ctx context.Context, id, authKey string, accessedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET auth_key = ?, last_accessed = ? WHERE id = ?`,
		nullString(authKey), formatTime(accessedAt), id,
	)
	if err != nil {
		return fmt.Errorf("setting auth key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserRolesByCreatedRange sets role on every user with
// from < created_date < to and returns how many records changed.
// Users that already hold the role are not counted.
func (s *SQLiteStore) SetUserRolesByCreatedRange(ctx context.Context, from, to time.Time, role RoleName) (int, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE created_date > ? AND created_date < ? AND role != ?`,
		string(role), formatTime(from), formatTime(to), string(role),
	)
	if err != nil {
		return 0, fmt.Errorf("updating roles: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("updated user roles", "role", role, "count", n)
	return int(n), nil
}

// DeleteUser removes a user and returns the deleted count (0 or 1).
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// deleteChunkSize keeps each DELETE well under SQLite's bound-variable limit.
const deleteChunkSize = 500

// DeleteUsers removes every listed user and returns how many existed. Ids are
// deleted in chunks inside one transaction.
func (s *SQLiteStore) DeleteUsers(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		chunk := ids[start:min(start+deleteChunkSize, len(ids))]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("deleting users: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("getting rows affected: %w", err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing user deletes: %w", err)
	}

	s.logger.Debug("deleted users", "requested", len(ids), "deleted", deleted)
	return int(deleted), nil
}

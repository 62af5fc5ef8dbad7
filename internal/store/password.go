// ABOUTME: Tagged password value recording whether it is plaintext or already hashed
// ABOUTME: Hash state is decided by the caller, never inferred from the string's shape

package store

// Password is either a plaintext password that still needs hashing or an
// already hashed value. The zero value is an empty plaintext password.
type Password struct {
	value  string
	hashed bool
}

// PlaintextPassword wraps a password that has not been hashed yet.
func PlaintextPassword(s string) Password {
	return Password{value: s}
}

// HashedPassword wraps a value that is already a password hash.
func HashedPassword(hash string) Password {
	return Password{value: hash, hashed: true}
}

// IsHashed reports whether the value is a hash.
func (p Password) IsHashed() bool { return p.hashed }

// IsZero reports whether no password was supplied.
func (p Password) IsZero() bool { return p.value == "" }

// Value returns the raw plaintext or hash.
func (p Password) Value() string { return p.value }

// String keeps passwords out of logs and fmt output.
func (p Password) String() string {
	if p.hashed {
		return "[hashed]"
	}
	return "[plaintext]"
}

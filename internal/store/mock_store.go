// ABOUTME: Mock store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory ReadingStore and UserStore for testing.
// Readings keep insertion order so "first encountered" matches SQLite.
type MockStore struct {
	mu       sync.RWMutex
	readings []*Reading
	users    map[string]*User // keyed by user ID

	// PingErr, when set, is returned by Ping.
	PingErr error
}

var (
	_ ReadingStore = (*MockStore)(nil)
	_ UserStore    = (*MockStore)(nil)
)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users: make(map[string]*User),
	}
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// CreateReading stores a copy of the reading under a fresh ID.
func (m *MockStore) CreateReading(ctx context.Context, reading *Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reading.ID = uuid.NewString()
	r := *reading
	r.Time = r.Time.UTC()
	m.readings = append(m.readings, &r)
	return nil
}

// CreateReadings stores copies of all readings.
func (m *MockStore) CreateReadings(ctx context.Context, readings []*Reading) (int, error) {
	for _, r := range readings {
		if err := m.CreateReading(ctx, r); err != nil {
			return 0, err
		}
	}
	return len(readings), nil
}

// CountReadings returns the number of stored readings.
func (m *MockStore) CountReadings(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings), nil
}

// GetReading retrieves a reading by ID.
func (m *MockStore) GetReading(ctx context.Context, id string) (*Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.readings {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// betterPeak reports whether candidate beats current: higher value wins,
// then earlier time. Equal value and time keep the earlier-inserted current.
func betterPeak(value, current float64, t, currentTime time.Time) bool {
	if value != current {
		return value > current
	}
	return t.Before(currentTime)
}

// MaxPrecipitation returns the wettest reading of a device at or after since.
func (m *MockStore) MaxPrecipitation(ctx context.Context, deviceName string, since time.Time) (*PrecipitationPeak, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Reading
	for _, r := range m.readings {
		if r.DeviceName != deviceName || r.Time.Before(since) {
			continue
		}
		if best == nil || betterPeak(r.Precipitation, best.Precipitation, r.Time, best.Time) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return &PrecipitationPeak{
		DeviceName:    best.DeviceName,
		Time:          best.Time,
		Precipitation: best.Precipitation,
	}, nil
}

// ReadingAtHour returns the first stored reading of a device in the UTC hour of at.
func (m *MockStore) ReadingAtHour(ctx context.Context, deviceName string, at time.Time) (*HourlySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hour := at.UTC().Hour()
	for _, r := range m.readings {
		if r.DeviceName == deviceName && r.Time.UTC().Hour() == hour {
			return &HourlySnapshot{
				Temperature:         r.Temperature,
				AtmosphericPressure: r.AtmosphericPressure,
				Precipitation:       r.Precipitation,
				SolarRadiation:      r.SolarRadiation,
			}, nil
		}
	}
	return nil, ErrNotFound
}

// MaxTemperature returns the hottest reading with from < time < to.
func (m *MockStore) MaxTemperature(ctx context.Context, from, to time.Time) (*TemperaturePeak, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Reading
	for _, r := range m.readings {
		if !r.Time.After(from) || !r.Time.Before(to) {
			continue
		}
		if best == nil || betterPeak(r.Temperature, best.Temperature, r.Time, best.Time) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return &TemperaturePeak{
		DeviceName:  best.DeviceName,
		Time:        best.Time,
		Temperature: best.Temperature,
	}, nil
}

// UpdatePrecipitation sets the precipitation of one reading.
func (m *MockStore) UpdatePrecipitation(ctx context.Context, id string, precipitation float64) (*Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.readings {
		if r.ID == id {
			r.Precipitation = precipitation
			c := *r
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetUserByEmail retrieves a user by exact email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByAuthKey retrieves the user holding the given session token.
func (m *MockStore) GetUserByAuthKey(ctx context.Context, authKey string) (*User, error) {
	if authKey == "" {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.AuthKey == authKey {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns every user ordered by creation date.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedDate.Equal(users[j].CreatedDate) {
			return users[i].CreatedDate.Before(users[j].CreatedDate)
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

// CountUsers returns the number of stored users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// emailTakenLocked reports whether another user already has email.
// Caller must hold m.mu.
func (m *MockStore) emailTakenLocked(email, exceptID string) bool {
	for id, u := range m.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

// CreateUser stores a copy of the user under a fresh ID.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.emailTakenLocked(user.Email, "") {
		return ErrEmailExists
	}

	user.ID = uuid.NewString()
	u := *user
	m.users[u.ID] = &u
	return nil
}

// UpdateUser replaces a stored user.
func (m *MockStore) UpdateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	if m.emailTakenLocked(user.Email, user.ID) {
		return ErrEmailExists
	}

	u := *user
	m.users[u.ID] = &u
	return nil
}

// SetUserAuthKey sets or clears the session token of a user.
func (m *MockStore) SetUserAuthKey(ctx context.Context, id, authKey string, accessedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if authKey != "" {
		for otherID, other := range m.users {
			if otherID != id && other.AuthKey == authKey {
				return fmt.Errorf("setting auth key: token already in use")
			}
		}
	}
	u.AuthKey = authKey
	u.LastAccessed = accessedAt
	return nil
}

// SetUserRolesByCreatedRange sets role on every user with from < created < to.
func (m *MockStore) SetUserRolesByCreatedRange(ctx context.Context, from, to time.Time, role RoleName) (int, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, u := range m.users {
		if u.CreatedDate.After(from) && u.CreatedDate.Before(to) && u.Role != role {
			u.Role = role
			n++
		}
	}
	return n, nil
}

// DeleteUser removes a user.
func (m *MockStore) DeleteUser(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

// DeleteUsers removes every listed user.
func (m *MockStore) DeleteUsers(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := m.users[id]; ok {
			delete(m.users, id)
			n++
		}
	}
	return n, nil
}

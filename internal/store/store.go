// ABOUTME: Store interfaces and entity types for weather-gateway persistence
// ABOUTME: Defines Reading, User, query projections and the ReadingStore/UserStore contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when creating or updating a user would duplicate an email
var ErrEmailExists = errors.New("email already exists")

// ErrPasswordNotHashed is returned when a user is written with a plaintext password
var ErrPasswordNotHashed = errors.New("password must be hashed before it is stored")

// ErrInvalidRole is returned when a user is written with a role outside ValidRoleNames
var ErrInvalidRole = errors.New("invalid role")

// Reading is one telemetry sample from a weather station.
type Reading struct {
	ID                  string
	DeviceName          string
	Time                time.Time
	Precipitation       float64 // mm/h
	AtmosphericPressure float64 // kPa
	MaxWindSpeed        float64 // m/s
	SolarRadiation      float64 // W/m2
	VaporPressure       float64 // kPa
	Humidity            float64 // %
	Temperature         float64 // deg C
	WindDirection       float64 // deg
	Latitude            float64
	Longitude           float64
}

// PrecipitationPeak is the projection returned by ReadingStore.MaxPrecipitation.
type PrecipitationPeak struct {
	DeviceName    string
	Time          time.Time
	Precipitation float64
}

// HourlySnapshot is the projection returned by ReadingStore.ReadingAtHour.
type HourlySnapshot struct {
	Temperature         float64
	AtmosphericPressure float64
	Precipitation       float64
	SolarRadiation      float64
}

// TemperaturePeak is the projection returned by ReadingStore.MaxTemperature.
type TemperaturePeak struct {
	DeviceName  string
	Time        time.Time
	Temperature float64
}

// User is an account and, optionally, its single active session.
type User struct {
	ID           string
	Email        string
	Password     Password
	Role         RoleName
	FirstName    string
	LastName     string
	CreatedDate  time.Time
	LastAccessed time.Time
	AuthKey      string // empty when there is no active session
}

// ReadingStore defines persistence and time-series queries over readings.
type ReadingStore interface {
	// CreateReading inserts the reading under a newly generated ID, which is
	// written back into reading.ID. Any ID set by the caller is discarded.
	CreateReading(ctx context.Context, reading *Reading) error
	// CreateReadings inserts every reading and returns the number inserted.
	CreateReadings(ctx context.Context, readings []*Reading) (int, error)
	CountReadings(ctx context.Context) (int, error)

	// Queries return ErrNotFound when nothing matches.
	MaxPrecipitation(ctx context.Context, deviceName string, since time.Time) (*PrecipitationPeak, error)
	ReadingAtHour(ctx context.Context, deviceName string, at time.Time) (*HourlySnapshot, error)
	MaxTemperature(ctx context.Context, from, to time.Time) (*TemperaturePeak, error)

	GetReading(ctx context.Context, id string) (*Reading, error)
	UpdatePrecipitation(ctx context.Context, id string, precipitation float64) (*Reading, error)
}

// UserStore defines persistence and lookup of users and their session tokens.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByAuthKey(ctx context.Context, authKey string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)

	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	// SetUserAuthKey replaces the session token of a user. An empty authKey
	// clears the session.
	SetUserAuthKey(ctx context.Context, id, authKey string, accessedAt time.Time) error
	SetUserRolesByCreatedRange(ctx context.Context, from, to time.Time, role RoleName) (int, error)

	DeleteUser(ctx context.Context, id string) (int, error)
	DeleteUsers(ctx context.Context, ids []string) (int, error)
}

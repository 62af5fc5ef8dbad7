// Package store provides persistent storage for the weather gateway using SQLite.
//
// # Architecture
//
// Two interfaces split the two logical collections:
//
//   - ReadingStore: station readings and the time-series queries over them
//   - UserStore: accounts, roles and the single session token per account
//
// SQLiteStore implements both in a single struct backed by one *sql.DB that
// is opened once at process start with Open and released with Close. The
// handle is passed to every component that needs it; there is no package
// level connection.
//
// # Data Models
//
//   - Reading: one telemetry sample (precipitation, pressure, wind, solar,
//     humidity, temperature, position) for a named device
//   - PrecipitationPeak, HourlySnapshot, TemperaturePeak: fixed projections
//     returned by the analytic queries
//   - User: account with a tagged Password, a RoleName and an optional
//     AuthKey (the session token)
//
// # SQLite Configuration
//
// Two drivers are supported: modernc.org/sqlite (DriverModernc, pure Go,
// default) and github.com/mattn/go-sqlite3 (DriverCGO). Each connection
// enables foreign keys and a busy timeout through the DSN, and the database
// runs in WAL mode.
//
// Timestamps are stored as fixed-width UTC text so range filters compare
// lexically. The hour of day used by ReadingAtHour is stored alongside in
// hour_utc.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist, or a query matched nothing
//   - ErrEmailExists: email already belongs to another user
//   - ErrPasswordNotHashed: a plaintext Password reached the store
//   - ErrInvalidRole: role outside ValidRoleNames
//
// Every other error is a wrapped driver failure.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	s := store.NewMockStore()
//	// s implements ReadingStore and UserStore
//
// Use NewSQLiteStore(path) with a t.TempDir() path for integration tests.
package store

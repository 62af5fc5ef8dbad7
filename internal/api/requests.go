// ABOUTME: Request shapes and structural validation for the HTTP API
// ABOUTME: Checks presence and types of fields and parses dates before calling services

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/store"
)

// errBadRequest is matched by every structural validation failure.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON decodes the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, auth.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps (with optional fractional seconds)
// and plain dates, which are taken as midnight UTC.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, badRequest("%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", field)
}

func requiredQuery(q url.Values, field string) (string, error) {
	v := strings.TrimSpace(q.Get(field))
	if v == "" {
		return "", badRequest("%s is required", field)
	}
	return v, nil
}

// readingFields are the measurement fields shared by single and batch
// reading requests. Pointers distinguish a missing field from zero.
type readingFields struct {
	Time                *string  `json:"time"`
	Precipitation       *float64 `json:"precipitation"`
	AtmosphericPressure *float64 `json:"atmosphericPressure"`
	MaxWindSpeed        *float64 `json:"maxWindSpeed"`
	SolarRadiation      *float64 `json:"solarRadiation"`
	VaporPressure       *float64 `json:"vaporPressure"`
	Humidity            *float64 `json:"humidity"`
	Temperature         *float64 `json:"temperature"`
	WindDirection       *float64 `json:"windDirection"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
}

// toReading converts the fields to a Reading. When strict, every field is
// required; otherwise absent measurements default to zero but time is still
// required.
func (f *readingFields) toReading(strict bool) (*store.Reading, error) {
	if f.Time == nil {
		return nil, badRequest("time is required")
	}
	t, err := parseDate("time", *f.Time)
	if err != nil {
		return nil, err
	}

	r := &store.Reading{Time: t}
	numbers := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"precipitation", f.Precipitation, &r.Precipitation},
		{"atmosphericPressure", f.AtmosphericPressure, &r.AtmosphericPressure},
		{"maxWindSpeed", f.MaxWindSpeed, &r.MaxWindSpeed},
		{"solarRadiation", f.SolarRadiation, &r.SolarRadiation},
		{"vaporPressure", f.VaporPressure, &r.VaporPressure},
		{"humidity", f.Humidity, &r.Humidity},
		{"temperature", f.Temperature, &r.Temperature},
		{"windDirection", f.WindDirection, &r.WindDirection},
		{"latitude", f.Latitude, &r.Latitude},
		{"longitude", f.Longitude, &r.Longitude},
	}
	for _, n := range numbers {
		if n.src == nil {
			if strict {
				return nil, badRequest("%s is required", n.name)
			}
			continue
		}
		*n.dst = *n.src
	}
	return r, nil
}

type createReadingRequest struct {
	DeviceName string `json:"deviceName"`
	readingFields
}

func (req *createReadingRequest) reading() (*store.Reading, error) {
	if strings.TrimSpace(req.DeviceName) == "" {
		return nil, badRequest("deviceName is required")
	}
	r, err := req.toReading(true)
	if err != nil {
		return nil, err
	}
	r.DeviceName = req.DeviceName
	return r, nil
}

type createReadingsRequest struct {
	DeviceName string          `json:"deviceName"`
	Readings   []readingFields `json:"readings"`
}

func (req *createReadingsRequest) readings() ([]*store.Reading, error) {
	if strings.TrimSpace(req.DeviceName) == "" {
		return nil, badRequest("deviceName is required")
	}
	if req.Readings == nil {
		return nil, badRequest("readings is required")
	}
	out := make([]*store.Reading, 0, len(req.Readings))
	for i := range req.Readings {
		r, err := req.Readings[i].toReading(false)
		if err != nil {
			return nil, fmt.Errorf("readings[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type updatePrecipitationRequest struct {
	ID            string   `json:"id"`
	Precipitation *float64 `json:"precipitation"`
}

func (req *updatePrecipitationRequest) validate() error {
	if req.ID == "" {
		return badRequest("id is required")
	}
	if req.Precipitation == nil {
		return badRequest("precipitation is required")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *loginRequest) validate() error {
	if req.Email == "" {
		return badRequest("email is required")
	}
	if req.Password == "" {
		return badRequest("password is required")
	}
	return nil
}

type logoutRequest struct {
	AuthenticationKey string `json:"authenticationKey"`
}

// userFields is shared by create and update. PasswordHashed marks password
// as an existing hash to be stored as is.
type userFields struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	PasswordHashed bool   `json:"passwordHashed"`
	Role           string `json:"role"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
}

func (f *userFields) password() store.Password {
	if f.Password == "" {
		return store.Password{}
	}
	if f.PasswordHashed {
		return store.HashedPassword(f.Password)
	}
	return store.PlaintextPassword(f.Password)
}

type createUserRequest struct {
	userFields
}

func (req *createUserRequest) validate() error {
	for _, f := range []struct{ name, value string }{
		{"email", req.Email},
		{"password", req.Password},
		{"role", req.Role},
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
	} {
		if strings.TrimSpace(f.value) == "" {
			return badRequest("%s is required", f.name)
		}
	}
	return nil
}

// updateUserRequest shadows the name fields with pointers so that an explicit
// "" clears a name while an absent field keeps it.
type updateUserRequest struct {
	ID string `json:"id"`
	userFields
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (req *updateUserRequest) validate() error {
	if req.ID == "" {
		return badRequest("id is required")
	}
	return nil
}

type updateRolesRequest struct {
	Role     string `json:"role"`
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

func (req *updateRolesRequest) parse() (from, to time.Time, err error) {
	if req.Role == "" {
		return from, to, badRequest("role is required")
	}
	if from, err = parseDate("fromDate", req.FromDate); err != nil {
		return from, to, err
	}
	if to, err = parseDate("toDate", req.ToDate); err != nil {
		return from, to, err
	}
	return from, to, nil
}

type deleteUserRequest struct {
	ID string `json:"id"`
}

type deleteUsersRequest struct {
	IDs []string `json:"ids"`
}

// ABOUTME: HTTP middleware that authorizes requests through the Gate
// ABOUTME: Extracts the session token from the JSON body, the authKey query param or a Bearer header

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/2389/weather-gateway/internal/store"
)

// MaxBodyBytes bounds every request body. The middleware scans up to this
// many bytes for the token and handlers reject anything larger.
const MaxBodyBytes = 4 << 20

// ErrorWriter renders an authorization failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns "" if the header is absent or not a bearer token.
func extractBearerToken(authHeader string) string {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// bodyToken reads the authenticationKey field from a JSON object body and
// restores the body for the next handler. present reports whether the field
// was set to a non-null value, even an empty one.
func bodyToken(r *http.Request) (token string, present bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", false, nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return "", false, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		r.Body.Close()
		return "", false, err
	}

	if len(data) > MaxBodyBytes {
		// Hand the whole body on so the handler can report its size.
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
		return "", false, nil
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))

	var payload struct {
		AuthenticationKey *string `json:"authenticationKey"`
	}
	// A body that is not a JSON object has no token; the handler reports
	// the decode error itself.
	if err := json.Unmarshal(data, &payload); err != nil || payload.AuthenticationKey == nil {
		return "", false, nil
	}
	return *payload.AuthenticationKey, true, nil
}

// ExtractToken returns the session token of a request. A JSON body field
// authenticationKey wins over the authKey query parameter, which wins over an
// Authorization: Bearer header. A body field that is present but empty still
// wins, so the request fails as missing a token.
func ExtractToken(r *http.Request) (string, error) {
	token, present, err := bodyToken(r)
	if err != nil {
		return "", err
	}
	if present {
		return token, nil
	}
	if token = r.URL.Query().Get("authKey"); token != "" {
		return token, nil
	}
	return extractBearerToken(r.Header.Get("Authorization")), nil
}

// Middleware creates an HTTP middleware that authorizes the request for the
// given roles and adds the Identity to the request context. A nil onError
// writes a plain JSON error.
func Middleware(gate *Gate, allowed store.Roles, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractToken(r)
			if err != nil {
				onError(w, r, err)
				return
			}

			id, err := gate.Authorize(r.Context(), token, allowed)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// StatusCode maps an authorization error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	body, _ := json.Marshal(map[string]string{"error": msg})
	http.Error(w, string(body), status)
}

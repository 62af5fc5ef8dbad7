// ABOUTME: Tests for HTTP authorization middleware
// ABOUTME: Covers token extraction precedence, body restoration and status mapping

package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/weather-gateway/internal/store"
)

func TestExtractToken_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		query  string
		header string
		want   string
	}{
		{"body only", `{"authenticationKey":"body"}`, "", "", "body"},
		{"query only", "", "authKey=query", "", "query"},
		{"header only", "", "", "Bearer header", "header"},
		{"body beats query", `{"authenticationKey":"body"}`, "authKey=query", "", "body"},
		{"query beats header", "", "authKey=query", "Bearer header", "query"},
		{"empty body value still wins", `{"authenticationKey":""}`, "authKey=query", "", ""},
		{"null body value falls through", `{"authenticationKey":null}`, "authKey=query", "", "query"},
		{"array body has no token", `[1,2,3]`, "authKey=query", "", "query"},
		{"nothing", "", "", "", ""},
		{"non-bearer header", "", "", "Basic abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/readings"
			if tt.query != "" {
				target += "?" + tt.query
			}
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, target, body)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, err := ExtractToken(req)
			if err != nil {
				t.Fatalf("ExtractToken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractToken_RestoresBody(t *testing.T) {
	payload := `{"authenticationKey":"k","deviceName":"dev"}`
	req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(payload))

	if _, err := ExtractToken(req); err != nil {
		t.Fatalf("ExtractToken() error = %v", err)
	}

	rest, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(rest) != payload {
		t.Errorf("body after extraction = %q, want %q", rest, payload)
	}
}

func TestExtractToken_LargeBody(t *testing.T) {
	// A station batch well past 1 MiB, token at the end of the object.
	var b strings.Builder
	b.WriteString(`{"deviceName":"dev","readings":[`)
	for i := 0; i < 30000; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"time":"2021-05-07T02:54:10Z","temperature":21.5,"humidity":70.1}`)
	}
	b.WriteString(`],"authenticationKey":"k"}`)
	payload := b.String()
	if len(payload) <= 1<<20 || len(payload) > MaxBodyBytes {
		t.Fatalf("payload size %d outside the range under test", len(payload))
	}

	req := httptest.NewRequest(http.MethodPost, "/readings-many", strings.NewReader(payload))
	got, err := ExtractToken(req)
	if err != nil {
		t.Fatalf("ExtractToken() error = %v", err)
	}
	if got != "k" {
		t.Errorf("ExtractToken() = %q, want %q", got, "k")
	}

	rest, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if len(rest) != len(payload) {
		t.Errorf("restored body length = %d, want %d", len(rest), len(payload))
	}
}

func TestExtractToken_OversizedBodyIsPassedOn(t *testing.T) {
	payload := `{"authenticationKey":"k","pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/readings-many?authKey=query", strings.NewReader(payload))

	got, err := ExtractToken(req)
	if err != nil {
		t.Fatalf("ExtractToken() error = %v", err)
	}
	if got != "query" {
		t.Errorf("ExtractToken() = %q, want %q", got, "query")
	}

	rest, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(rest) != payload {
		t.Errorf("restored body length = %d, want %d", len(rest), len(payload))
	}
}

func TestMiddleware(t *testing.T) {
	gate, s, user := setupGate(t, nil)
	if err := s.SetUserAuthKey(context.Background(), user.ID, "station-key", time.Now()); err != nil {
		t.Fatalf("SetUserAuthKey() error = %v", err)
	}

	var seen *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		roles      store.Roles
		target     string
		wantStatus int
		wantError  string
	}{
		{"allowed", ingestRoles, "/readings?authKey=station-key", http.StatusNoContent, ""},
		{"missing", ingestRoles, "/readings", http.StatusUnauthorized, "missing token"},
		{"invalid", ingestRoles, "/readings?authKey=nope", http.StatusUnauthorized, "invalid or expired token"},
		{"forbidden", store.Roles{store.RoleAdmin}, "/readings?authKey=station-key", http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			handler := Middleware(gate, tt.roles, nil)(next)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError == "" {
				if seen == nil || seen.UserID != user.ID {
					t.Errorf("identity in context = %+v, want user %s", seen, user.ID)
				}
				return
			}
			if seen != nil {
				t.Error("handler must not run when authorization fails")
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestMiddleware_CustomErrorWriter(t *testing.T) {
	gate, _, _ := setupGate(t, nil)

	var got error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(StatusCode(err))
	}

	handler := Middleware(gate, ingestRoles, onError)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got != ErrMissingToken {
		t.Errorf("onError got %v, want ErrMissingToken", got)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

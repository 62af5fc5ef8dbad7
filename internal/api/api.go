// ABOUTME: HTTP API for readings and users, routed with gorilla/mux
// ABOUTME: Maps service outcomes to status codes and {"status","message"} JSON bodies

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/ingest"
	"github.com/2389/weather-gateway/internal/session"
	"github.com/2389/weather-gateway/internal/store"
	"github.com/2389/weather-gateway/internal/telemetry"
)

// Role sets for protected routes.
var (
	ingestRoles = store.Roles{store.RoleAdmin, store.RoleStudent, store.RoleStation}
	adminRoles  = store.Roles{store.RoleAdmin}
)

// Server serves the HTTP API.
type Server struct {
	telemetry *telemetry.Service
	sessions  *session.Service
	gate      *auth.Gate
	logger    *slog.Logger
}

// New creates the API server.
func New(telemetry *telemetry.Service, sessions *session.Service, gate *auth.Gate, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		telemetry: telemetry,
		sessions:  sessions,
		gate:      gate,
		logger:    logger.With("component", "api"),
	}
}

// Register adds every API route to r.
func (s *Server) Register(r *mux.Router) {
	r.Use(s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Sessions
	r.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users/logout", s.handleLogout).Methods(http.MethodPost)

	// Users
	r.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/user/{id}", s.handleGetUser).Methods(http.MethodGet)
	r.Handle("/users", s.protect(adminRoles, s.handleCreateUser)).Methods(http.MethodPost)
	r.Handle("/users", s.protect(adminRoles, s.handleUpdateUser)).Methods(http.MethodPatch)
	r.Handle("/users", s.protect(adminRoles, s.handleDeleteUser)).Methods(http.MethodDelete)
	r.Handle("/users/update-many", s.protect(adminRoles, s.handleUpdateRoles)).Methods(http.MethodPatch)
	r.Handle("/users/delete-many", s.protect(adminRoles, s.handleDeleteUsers)).Methods(http.MethodDelete)

	// Readings
	r.Handle("/readings", s.protect(ingestRoles, s.handleCreateReading)).Methods(http.MethodPost)
	r.Handle("/readings-many", s.protect(ingestRoles, s.handleCreateReadings)).Methods(http.MethodPost)
	r.Handle("/readings", s.protect(adminRoles, s.handleUpdatePrecipitation)).Methods(http.MethodPut)
	r.HandleFunc("/readings/max-precipitation", s.handleMaxPrecipitation).Methods(http.MethodGet)
	r.HandleFunc("/readings/by-station", s.handleReadingAtHour).Methods(http.MethodGet)
	r.HandleFunc("/readings/max-temp", s.handleMaxTemperature).Methods(http.MethodGet)
}

// Handler returns a router serving only the API routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

func (s *Server) protect(roles store.Roles, h http.HandlerFunc) http.Handler {
	return auth.Middleware(s.gate, roles, s.writeAuthError)(h)
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeServiceError(w, r, err, "authorization failed")
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// response is the envelope of every JSON reply.
type response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// writeJSON writes body as JSON. A body that cannot be encoded is logged and
// replaced with a 500 reply.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("encoding response", "status", status, "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(response{Status: status, Message: "internal error"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Debug("writing response", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, response{Status: status, Message: message})
}

// writeServiceError maps an error from the service layer to a status code.
// Expected outcomes keep their message; anything else is logged and reported
// with the generic failure message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	var rej *ingest.RejectionError
	switch {
	case errors.Is(err, errBadRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rej):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrInvalidCredentials):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidUser), errors.Is(err, store.ErrInvalidRole):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrEmailExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error(failure, "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, failure)
	}
}

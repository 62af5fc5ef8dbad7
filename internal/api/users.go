// ABOUTME: HTTP handlers for login, logout and user administration
// ABOUTME: User records are rendered without their password hash

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2389/weather-gateway/internal/auth"
	"github.com/2389/weather-gateway/internal/session"
	"github.com/2389/weather-gateway/internal/store"
)

// userView is the JSON form of a user.
type userView struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         store.RoleName `json:"role"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	CreatedDate  time.Time      `json:"createdDate"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

func toUserView(u *store.User) *userView {
	return &userView{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		CreatedDate:  u.CreatedDate.UTC(),
		LastAccessed: u.LastAccessed.UTC(),
	}
}

type userResponse struct {
	response
	User *userView `json:"user"`
}

type usersResponse struct {
	response
	Users []*userView `json:"users"`
}

type loginResponse struct {
	response
	AuthenticationKey string `json:"authenticationKey"`
}

type countResponse struct {
	response
	UpdatedCount *int `json:"updatedCount,omitempty"`
	DeletedCount *int `json:"deletedCount,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err, "login failed")
		return
	}

	s.writeJSON(w, http.StatusOK, loginResponse{
		response:          response{Status: http.StatusOK, Message: "User is logged in"},
		AuthenticationKey: token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractToken(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.sessions.Logout(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err, "logout failed")
		return
	}

	s.writeJSON(w, http.StatusOK, response{Status: http.StatusOK, Message: "User logged out"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.sessions.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "failed to list users")
		return
	}

	views := make([]*userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	s.writeJSON(w, http.StatusOK, usersResponse{
		response: response{Status: http.StatusOK, Message: "list of all users"},
		Users:    views,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessions.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "failed to get user")
		return
	}

	s.writeJSON(w, http.StatusOK, userResponse{
		response: response{Status: http.StatusOK, Message: "Get user by ID"},
		User:     toUserView(user),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.sessions.CreateUser(r.Context(), session.NewUser{
		Email:     req.Email,
		Password:  req.password(),
		Role:      store.RoleName(req.Role),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create user")
		return
	}

	s.writeJSON(w, http.StatusOK, userResponse{
		response: response{Status: http.StatusOK, Message: "User successfully created"},
		User:     toUserView(user),
	})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.sessions.UpdateUser(r.Context(), session.UserUpdate{
		ID:        req.ID,
		Email:     req.Email,
		Password:  req.password(),
		Role:      store.RoleName(req.Role),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.writeServiceError(w, r, err, "failed to update user")
		return
	}

	s.writeJSON(w, http.StatusOK, userResponse{
		response: response{Status: http.StatusOK, Message: "User updated"},
		User:     toUserView(user),
	})
}

func (s *Server) handleUpdateRoles(w http.ResponseWriter, r *http.Request) {
	var req updateRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := req.parse()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.sessions.SetRolesByCreatedRange(r.Context(), from, to, store.RoleName(req.Role))
	if err != nil {
		s.writeServiceError(w, r, err, "failed to update roles")
		return
	}

	s.writeJSON(w, http.StatusOK, countResponse{
		response:     response{Status: http.StatusOK, Message: "User roles updated"},
		UpdatedCount: &n,
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, badRequest("id is required").Error())
		return
	}

	n, err := s.sessions.DeleteUser(r.Context(), req.ID)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to delete user")
		return
	}

	s.writeJSON(w, http.StatusOK, countResponse{
		response:     response{Status: http.StatusOK, Message: "User deleted"},
		DeletedCount: &n,
	})
}

func (s *Server) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req deleteUsersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IDs == nil {
		s.writeError(w, http.StatusBadRequest, badRequest("ids is required").Error())
		return
	}

	n, err := s.sessions.DeleteUsers(r.Context(), req.IDs)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to delete users")
		return
	}

	s.writeJSON(w, http.StatusOK, countResponse{
		response:     response{Status: http.StatusOK, Message: "Users deleted"},
		DeletedCount: &n,
	})
}

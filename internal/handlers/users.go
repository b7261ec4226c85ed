package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jason-s-yu/parlor/internal/auth"
	"github.com/jason-s-yu/parlor/internal/database"
	"github.com/jason-s-yu/parlor/internal/models"
)

const guestName = "Guest"

// EnsureUser resolves the requesting user. A request without a valid token gets a fresh
// ephemeral guest, and the new token is set as a cookie on w.
func (s *Server) EnsureUser(w http.ResponseWriter, r *http.Request) (*models.User, error) {
	if token := tokenFromRequest(r); token != "" {
		id, err := auth.AuthenticateJWT(token)
		if err == nil {
			u, err := s.Users.GetUserByID(r.Context(), id)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, database.ErrUserNotFound) {
				return nil, fmt.Errorf("lookup user: %w", err)
			}
		}
	}

	guest := &models.User{Username: guestName, IsEphemeral: true}
	if err := s.Users.CreateUser(r.Context(), guest); err != nil {
		return nil, fmt.Errorf("failed to create ephemeral user: %w", err)
	}
	token, err := auth.CreateJWT(guest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	s.setAuthCookie(w, token)
	return guest, nil
}

// AuthenticatedUser resolves the user without creating one.
func (s *Server) AuthenticatedUser(r *http.Request) (*models.User, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, errors.New("missing auth token")
	}
	id, err := auth.AuthenticateJWT(token)
	if err != nil {
		return nil, err
	}
	return s.Users.GetUserByID(r.Context(), id)
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if s.TokenTTL > 0 {
		c.MaxAge = int(s.TokenTTL.Seconds())
	}
	http.SetCookie(w, c)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// CreateUserHandler registers a user with email and password.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		http.Error(w, "email, password and username are required", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Avatar:   req.Avatar,
	}
	err := s.Users.CreateUser(r.Context(), &user)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		s.Log.WithError(err).Error("Failed to create user")
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}
	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler exchanges email and password for a token, returned in the body and as the
// auth cookie.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password"
//	}
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.Log.WithError(err).Debug("Login failed")
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// ClaimEphemeralHandler turns the requesting guest into a registered user.
func (s *Server) ClaimEphemeralHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u, err := s.AuthenticatedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	if !u.IsEphemeral {
		http.Error(w, "user is not ephemeral", http.StatusBadRequest)
		return
	}

	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		http.Error(w, "invalid claim payload", http.StatusBadRequest)
		return
	}
	u.Email = req.Email
	u.Password = req.Password
	if req.Username != "" {
		u.Username = req.Username
	}

	err = s.Users.UpdateUserCredentials(r.Context(), u)
	if errors.Is(err, database.ErrEmailTaken) {
		http.Error(w, "email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		s.Log.WithError(err).Error("Failed to claim ephemeral user")
		http.Error(w, "failed to finalize ephemeral user", http.StatusInternalServerError)
		return
	}
	u.Password = ""
	writeJSON(w, http.StatusOK, u)
}

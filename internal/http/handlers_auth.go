package http

import (
	"net/http"

	"fincontrol/internal/auth"
	"fincontrol/internal/core"
	"fincontrol/internal/storage"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, session, err := s.deps.Auth.Signup(r.Context(), req.Email, sanitizeInput(req.Name), req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusCreated, user, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, session, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusOK, user, session)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, user core.User, session storage.Session) {
	auth.SetSessionCookie(w, session, s.opts.SecureCookies)
	WriteJSON(w, status, sessionJSON{User: toUser(user), Token: session.Token, ExpiresAt: session.ExpiresAt})
}

// handleLogout is idempotent: anonymous callers get 204 as well.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Auth.Logout(r.Context(), auth.RequestToken(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	auth.ClearSessionCookie(w, s.opts.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	WriteJSON(w, http.StatusOK, toUser(user))
}

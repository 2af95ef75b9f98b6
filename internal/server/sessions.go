package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/gateway/internal/errors"
	"github.com/devpulse/gateway/internal/logging"
	"github.com/devpulse/gateway/internal/middleware"
	"github.com/devpulse/gateway/internal/session"
)

const sessionHeader = "X-Session-ID"

func (s *Server) mountSessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/auth/csrf", s.handleCSRF)
}

// handleLogin exchanges a verified bearer token for a server-side session
// and its CSRF token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errors.ErrNotFound.WriteJSON(w)
		return
	}

	principal := middleware.PrincipalFrom(r.Context())
	if principal.IsAnonymous() {
		errors.ErrAuthFailure.WriteJSON(w)
		return
	}

	sess, err := s.sessions.Create(principal.ID)
	if err != nil {
		errors.ErrInternal.WriteJSON(w)
		return
	}
	token, err := s.sessions.IssueCSRF(sess.ID)
	if err != nil {
		errors.ErrInternal.WriteJSON(w)
		return
	}

	logging.Info("session created",
		zap.String("user_id", principal.ID),
		zap.String("session_id", sess.ID),
	)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sess.ID,
		"csrfToken": token,
		"expiresAt": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// handleLogout invalidates the presented session. Idempotent.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errors.ErrNotFound.WriteJSON(w)
		return
	}

	id := r.Header.Get(sessionHeader)
	if id == "" {
		errors.ErrValidation.WithMessage("Missing session id").WriteJSON(w)
		return
	}
	s.sessions.Invalidate(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleCSRF reissues the CSRF token for an active session. The token is
// stable until the rotation age passes.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errors.ErrNotFound.WriteJSON(w)
		return
	}

	id := r.Header.Get(sessionHeader)
	if id == "" {
		errors.ErrValidation.WithMessage("Missing session id").WriteJSON(w)
		return
	}
	token, err := s.sessions.IssueCSRF(id)
	if err != nil {
		switch err {
		case session.ErrNotFound, session.ErrInvalidated, session.ErrExpired:
			errors.ErrAuthFailure.WriteJSON(w)
		default:
			errors.ErrInternal.WriteJSON(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

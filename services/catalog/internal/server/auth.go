package server

import (
	"errors"
	"net/http"
	"time"

	"librarycatalog/pkg/auth"
)

const msgAccessDenied = "Access denied. Please log in."

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "login", "Too many login attempts, please try again later") {
		s.audit(r, "catalog.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		s.audit(r, "catalog.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.gate.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		s.audit(r, "catalog.login", "fail", "reason", "missing_credentials")
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.audit(r, "catalog.login", "fail", "reason", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	case err != nil:
		s.writeInternal(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie(sess.Token, sess.ExpiresAt, int(s.gate.SessionTTL().Seconds())))
	s.audit(r, "catalog.login", "success")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Login successful"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_ = s.gate.Logout()
	http.SetCookie(w, s.sessionCookie("", time.Unix(0, 0), -1))
	s.audit(r, "catalog.logout", "success")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logout successful"})
}

func (s *Server) sessionCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

// requireSession admits requests carrying a valid session cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.cookieName)
		if err != nil {
			s.audit(r, "catalog.authorize", "fail", "reason", "missing_session")
			writeError(w, http.StatusUnauthorized, msgAccessDenied)
			return
		}
		if err := s.gate.Check(c.Value); err != nil {
			s.audit(r, "catalog.authorize", "fail", "reason", "invalid_session")
			writeError(w, http.StatusUnauthorized, msgAccessDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

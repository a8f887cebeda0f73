package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"librarycatalog/internal/metrics"
	"librarycatalog/internal/ratelimit"
	"librarycatalog/internal/util"
	"librarycatalog/pkg/auth"
	"librarycatalog/services/catalog/internal/app"
)

const (
	maxBodyBytes      = 1 << 20
	defaultCookieName = "isAuthenticated"
	msgInternal       = "Something went wrong!"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Gate           *auth.Gate
	LoginLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	CookieName     string
	// SecureCookies marks the session cookie Secure (production).
	SecureCookies bool
	// ExposeErrors returns internal error text to clients (development).
	ExposeErrors bool
}

// Server exposes the catalog over HTTP.
type Server struct {
	app            *app.App
	gate           *auth.Gate
	loginLimiter   ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	cookieName     string
	secureCookies  bool
	exposeErrors   bool
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("auth gate required")
	}
	if cfg.LoginLimiter == nil {
		return nil, errors.New("login limiter required")
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	s := &Server{
		app:            cfg.App,
		gate:           cfg.Gate,
		loginLimiter:   cfg.LoginLimiter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		cookieName:     cookieName,
		secureCookies:  cfg.SecureCookies,
		exposeErrors:   cfg.ExposeErrors,
		router:         chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(s.trustedProxies,
			util.WithSecurityHeaders(
				util.WithCORS(s.corsOrigins, s.router))))
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.recoverPanic)
	r.Use(metrics.InstrumentHandler)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.mountAPI(r)
	// Same surface under /api for clients of the previous deployment layout.
	r.Route("/api", s.mountAPI)
}

func (s *Server) mountAPI(r chi.Router) {
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", s.handleListBooks)
		r.Get("/search", s.handleSearchBooks)
		r.Get("/count", s.handleCountBooks)
		r.Get("/isbn/{isbn}", s.handleGetBookByISBN)
		r.Get("/{id}", s.handleGetBook)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/", s.handleCreateBook)
			r.Put("/{id}", s.handleReplaceBook)
			r.Patch("/{id}", s.handlePatchBook)
			r.Delete("/{id}", s.handleDeleteBook)
		})
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Library API is running!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				w.Header().Set("Connection", "close")
				s.writeInternal(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// envelope is the uniform response body.
type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeInternal logs err and answers 500. The message is redacted unless
// errors are exposed.
func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	msg := msgInternal
	if s.exposeErrors {
		msg = err.Error()
	}
	writeError(w, http.StatusInternalServerError, msg)
}

// readJSON decodes exactly one JSON value of at most 1 MiB, rejecting unknown fields.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return describeJSONError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func describeJSONError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("body contains badly-formed JSON")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Errorf("body contains incorrect JSON type for field %q", typeErr.Field)
		}
		return fmt.Errorf("body contains incorrect JSON type (at character %d)", typeErr.Offset)
	case errors.Is(err, io.EOF):
		return errors.New("body must not be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return fmt.Errorf("body contains unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("body must not be larger than %d bytes", maxBytesErr.Limit)
	default:
		return err
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	metrics.RecordAuthEvent(event, outcome)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate keys on scope rather than path so /login and /api/login share a quota.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, scope, msg string) bool {
	key := scope + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

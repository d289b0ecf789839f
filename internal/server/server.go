// Package server exposes a Backend over the HTTP API that remote.HTTP speaks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conorfennell/neurapath/internal/contextutil"
	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/remote"
	"github.com/conorfennell/neurapath/internal/session"
	"github.com/conorfennell/neurapath/internal/store"
)

// maxBodyBytes caps request bodies; a whole database travels in one request.
const maxBodyBytes = 32 << 20

// Backend stores databases and accounts.
type Backend interface {
	store.Remote
	Register(ctx context.Context, cred session.Credentials) error
	Authenticate(ctx context.Context, cred session.Credentials) error
	DeleteAccount(ctx context.Context, userID string) error
	SetPublic(ctx context.Context, userID string, public bool) error
	IsPublic(ctx context.Context, userID string) (bool, error)
	PublicUsers(ctx context.Context) ([]string, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	backend Backend
	router  chi.Router
	policy  *bluemonday.Policy
	logger  *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		router:  chi.NewRouter(),
		policy:  domain.ContentPolicy(),
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors)

	s.router.Get("/health", s.handleHealth())
	s.router.Get("/public/data", s.handlePublicData())

	s.router.Route("/user", func(r chi.Router) {
		r.Post("/register", s.handleRegister())
		r.Get("/data/{username}", s.handleGetUserData())

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/data", s.handleGetOwnData())
			r.Post("/data", s.handleSaveData())
			r.Post("/records", s.handleCreateRecord())
			r.Put("/records", s.handleUpdateRecord())
			r.Delete("/records", s.handleDeleteRecord())
			r.Post("/set/public/{value}", s.handleSetPublic())
			r.Post("/delete", s.handleDeleteAccount())
		})
	})
}

type message struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, message{Error: true, Message: msg})
}

// fail maps a backend error onto a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, remote.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, remote.ErrUnknownUser):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, remote.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		contextutil.LoggerFromContext(r.Context()).Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func mustSession(r *http.Request) session.Credentials {
	cred, _ := session.FromContext(r.Context())
	return cred
}

// decodeRecord reads, validates and sanitises one record from the body.
func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request) (domain.Record, bool) {
	var rec domain.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid record: "+err.Error())
		return domain.Record{}, false
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Record{}, false
	}
	rec.Content = domain.SanitizeContent(rec.Content, s.policy)
	return rec, true
}

// handleHealth reports that the server is up.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleRegister creates an account from the basic-auth credentials.
func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := basicAuth(r)
		if !ok || cred.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}
		if err := s.backend.Register(r.Context(), cred); err != nil {
			s.fail(w, r, err)
			return
		}
		contextutil.LoggerFromContext(r.Context()).Info("Account registered", "user", cred.UserID)
		writeJSON(w, http.StatusCreated, message{Message: "registered"})
	}
}

// handleGetOwnData returns the caller's database.
func (s *Server) handleGetOwnData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.backend.FetchDatabase(r.Context(), mustSession(r).UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeRaw(w, body)
	}
}

// handleGetUserData returns another user's database if it is public. Owners
// can always read their own.
func (s *Server) handleGetUserData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")
		public, err := s.backend.IsPublic(r.Context(), username)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !public {
			cred, ok := basicAuth(r)
			if !ok || cred.UserID != username || s.backend.Authenticate(r.Context(), cred) != nil {
				s.fail(w, r, remote.ErrForbidden)
				return
			}
		}
		body, err := s.backend.FetchDatabase(r.Context(), username)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeRaw(w, body)
	}
}

// handleSaveData replaces the caller's database. Any of the known blob shapes
// is accepted.
func (s *Server) handleSaveData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		db, err := domain.Normalize(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid database: "+err.Error())
			return
		}
		for i := range db.Items {
			if err := db.Items[i].Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			db.Items[i].Content = domain.SanitizeContent(db.Items[i].Content, s.policy)
		}

		cred := mustSession(r)
		if err := s.backend.SaveDatabase(r.Context(), cred, db.Payload()); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message{Message: "saved " + strconv.Itoa(len(db.Items)) + " records"})
	}
}

// handleCreateRecord stores one new record.
func (s *Server) handleCreateRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.decodeRecord(w, r)
		if !ok {
			return
		}
		if err := s.backend.CreateRecord(r.Context(), mustSession(r), rec); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, message{Message: "created"})
	}
}

// handleUpdateRecord stores one changed record.
func (s *Server) handleUpdateRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.decodeRecord(w, r)
		if !ok {
			return
		}
		if err := s.backend.UpdateRecord(r.Context(), mustSession(r), rec); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message{Message: "updated"})
	}
}

// handleDeleteRecord deletes the record named by the id query parameter.
func (s *Server) handleDeleteRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := s.backend.DeleteRecord(r.Context(), mustSession(r), id); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message{Message: "deleted"})
	}
}

// handleSetPublic toggles whether the caller's database is public.
func (s *Server) handleSetPublic() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		public, err := strconv.ParseBool(chi.URLParam(r, "value"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "value must be true or false")
			return
		}
		if err := s.backend.SetPublic(r.Context(), mustSession(r).UserID, public); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message{Message: "visibility updated"})
	}
}

// handleDeleteAccount removes the caller's account and data.
func (s *Server) handleDeleteAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred := mustSession(r)
		if err := s.backend.DeleteAccount(r.Context(), cred.UserID); err != nil {
			s.fail(w, r, err)
			return
		}
		contextutil.LoggerFromContext(r.Context()).Info("Account deleted", "user", cred.UserID)
		writeJSON(w, http.StatusOK, message{Message: "account deleted"})
	}
}

// handlePublicData lists the public databases.
func (s *Server) handlePublicData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.backend.PublicUsers(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"databases": users})
	}
}

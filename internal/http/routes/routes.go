package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/chatdeck/internal/dashboard"
	appmw "github.com/briangreenhill/chatdeck/internal/http/middleware"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

const (
	sessUserID      = "user_id"
	sessAccessToken = "access_token"
	sessTokenExpiry = "token_expiry"
)

type Server struct {
	Router *chi.Mux
	Sess   *scs.SessionManager
	Dash   *dashboard.Service
	Logger zerolog.Logger
}

type ServerOptions struct {
	Sess   *scs.SessionManager
	Dash   *dashboard.Service
	Logger zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("req_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("took", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Sess: opts.Sess, Dash: opts.Dash, Logger: opts.Logger}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Post("/session", s.handleSignIn)
	r.Group(func(pr chi.Router) {
		pr.Use(s.sessionToContext)
		pr.Use(appmw.RequireAuth)
		pr.Delete("/session", s.handleSignOut)
		pr.Get("/api/dashboard", s.handleDashboard)
		pr.Get("/api/sections", s.handleListSections)
		pr.Get("/api/sections/{section}", s.handleSection)
		pr.Post("/api/cache/invalidate", s.handleInvalidate)
		pr.Get("/api/cache/stats", s.handleStats)
		pr.Delete("/api/files/{id}", s.handleDelete(s.Dash.DeleteFile))
		pr.Delete("/api/datasets/{id}", s.handleDelete(s.Dash.DeleteDataset))
		pr.Delete("/api/api-keys/{id}", s.handleDelete(s.Dash.RevokeAPIKey))
	})

	return s
}

// Handler returns the router wrapped with session loading
func (s *Server) Handler() http.Handler {
	return s.Sess.LoadAndSave(s.Router)
}

func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := s.Sess.GetString(ctx, sessUserID)
		tok := &oauth2.Token{
			AccessToken: s.Sess.GetString(ctx, sessAccessToken),
			TokenType:   "Bearer",
		}
		if exp := s.Sess.GetInt64(ctx, sessTokenExpiry); exp > 0 {
			tok.Expiry = time.Unix(exp, 0)
		}
		if id != "" && tok.Valid() {
			r = r.WithContext(appmw.WithUser(ctx, dashboard.User{ID: id, Token: tok}))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeFailure maps service and platform errors to a response
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownSection):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, dashboard.ErrNoSession), platform.IsUnauthorized(err):
		writeError(w, r, http.StatusUnauthorized, "session expired")
	case platform.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "request cancelled")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("platform request failed")
		writeError(w, r, http.StatusBadGateway, "platform request failed")
	}
}

type signInRequest struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

// handleSignIn stores the token the auth provider issued and warms the
// user's cache
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad json")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.AccessToken == "" {
		writeError(w, r, http.StatusBadRequest, "user_id and access_token required")
		return
	}

	var expiry time.Time
	if req.ExpiresAt > 0 {
		expiry = time.Unix(req.ExpiresAt, 0)
		if time.Now().After(expiry) {
			writeError(w, r, http.StatusBadRequest, "token already expired")
			return
		}
	}

	if err := s.Sess.RenewToken(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("renew session token")
		writeError(w, r, http.StatusInternalServerError, "could not start session")
		return
	}
	s.Sess.Put(r.Context(), sessUserID, req.UserID)
	s.Sess.Put(r.Context(), sessAccessToken, req.AccessToken)
	s.Sess.Put(r.Context(), sessTokenExpiry, req.ExpiresAt)

	u := dashboard.User{ID: req.UserID, Token: &oauth2.Token{AccessToken: req.AccessToken, TokenType: "Bearer", Expiry: expiry}}
	if err := s.Dash.Preload(r.Context(), u); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("user_id", u.ID).Msg("preload not started")
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"user_id":  req.UserID,
		"sections": s.Dash.Sections(),
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	u, _ := appmw.UserFrom(r.Context())
	s.Dash.Forget(u.ID)
	if err := s.Sess.Destroy(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("destroy session")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := appmw.UserFrom(r.Context())

	ov, err := s.Dash.Overview(r.Context(), u)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ov)
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"sections": s.Dash.Sections()})
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	u, _ := appmw.UserFrom(r.Context())
	name := chi.URLParam(r, "section")

	data, err := s.Dash.Section(r.Context(), u, name)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"data": data})
}

type invalidateRequest struct {
	Keys []string `json:"keys"`
}

// handleInvalidate drops the given keys, or the user's whole cache when the
// body is empty or lists no keys
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	u, _ := appmw.UserFrom(r.Context())

	var req invalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "bad json")
		return
	}

	s.Dash.Invalidate(u.ID, req.Keys...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u, _ := appmw.UserFrom(r.Context())
	writeJSON(w, r, http.StatusOK, s.Dash.Stats(u.ID))
}

func (s *Server) handleDelete(del func(ctx context.Context, u dashboard.User, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := appmw.UserFrom(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid id")
			return
		}

		if err := del(r.Context(), u, id.String()); err != nil {
			writeFailure(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

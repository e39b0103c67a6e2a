package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carbonq/internal/ratelimit"
	"carbonq/internal/util"
	"carbonq/pkg/domain"
	"carbonq/services/dashboard/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string

	QueryLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the dashboard service.
type Server struct {
	app     *app.App
	trusted *util.TrustedProxies
	origins []string

	queryLimiter *ratelimit.FixedWindowLimiter

	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:          cfg.App,
		trusted:      cfg.TrustedProxies,
		origins:      cfg.AllowedOrigins,
		queryLimiter: cfg.QueryLimiter,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithCORS(s.origins, handler)
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithRequestLog(s.trusted, handler)
	handler = util.WithRequestID(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/dashboard/query", s.authenticated(s.handleQuery))
	s.mux.Handle("/dashboard/stats", s.authenticated(s.handleStats))
	s.mux.Handle("/dashboard/platforms", s.authenticated(s.handlePlatforms))
	s.mux.Handle("/dashboard/recent", s.authenticated(s.handleRecent))
	s.mux.Handle("/dashboard/weekly", s.authenticated(s.handleWeekly))
	s.mux.Handle("/dashboard/insights", s.authenticated(s.handleInsights))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok := s.app.UserIDFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// Per-user, not per-IP: the delivery agent may flush a large backlog
	// from one address and should only be throttled for its own user.
	if !s.queryLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req recordQueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Platform) == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return
	}
	var occurredAt time.Time
	if strings.TrimSpace(req.OccurredAt) != "" {
		parsed, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "occurred_at must be RFC 3339")
			return
		}
		occurredAt = parsed
	}
	record, err := s.app.RecordQuery(userID, domain.Platform(req.Platform), req.CarbonGrams, occurredAt, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownPlatform), errors.Is(err, app.ErrInvalidTimestamp):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("record query", "err", err, "request_id", util.RequestIDFromRequest(r))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Stats(userID)
	if err != nil {
		s.internalError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Platforms(userID)
	if err != nil {
		s.internalError(w, r, "platforms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": out,
		"count":     len(out),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	out, err := s.app.Recent(userID, limit)
	if err != nil {
		s.internalError(w, r, "recent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": out,
		"count":   len(out),
	})
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Weekly(userID)
	if err != nil {
		s.internalError(w, r, "weekly", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	out, err := s.app.Insights(userID)
	if err != nil {
		s.internalError(w, r, "insights", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op, "err", err, "request_id", util.RequestIDFromRequest(r))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type recordQueryRequest struct {
	Platform    string            `json:"platform"`
	CarbonGrams float64           `json:"carbon_grams"`
	OccurredAt  string            `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Warn("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

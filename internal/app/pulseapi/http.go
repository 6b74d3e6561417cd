package pulseapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulse"
	"github.com/pulsefeed/project/internal/app/submission"
	platformauth "github.com/pulsefeed/project/internal/platform/auth"
	"github.com/pulsefeed/project/internal/platform/errtrack"
	"github.com/pulsefeed/project/internal/platform/logger"
	"github.com/pulsefeed/project/services/frontend"
)

type FeedBuilder interface {
	Build(ctx context.Context, userID string) (feed.Feed, error)
}

type Gateway interface {
	Submit(ctx context.Context, userID string, req submission.Request) (submission.Receipt, error)
	Snooze(ctx context.Context, userID, refID, pulseType string) (pulse.Record, error)
}

type TokenParser interface {
	Parse(token string) (platformauth.Claims, error)
}

type Handler struct {
	Feed          FeedBuilder
	Gateway       Gateway
	Tokens        TokenParser
	AllowedOrigin string
	AdvanceDelay  time.Duration
	Log           *logger.Logger
}

func NewHandler(feedBuilder FeedBuilder, gateway Gateway, tokens TokenParser, allowedOrigin string, log *logger.Logger) *Handler {
	return &Handler{
		Feed:          feedBuilder,
		Gateway:       gateway,
		Tokens:        tokens,
		AllowedOrigin: allowedOrigin,
		AdvanceDelay:  600 * time.Millisecond,
		Log:           logger.OrNop(log).With("component", "pulseapi"),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/app", h.handleAppPage)
	r.Handle("/static/*", http.StripPrefix("/static/", frontend.StaticHandler()))

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)
		authR.Get("/api/v1/feed", h.handleFeed)
		authR.Post("/api/v1/responses", h.handleSubmit)
		authR.Post("/api/v1/pulses/snooze", h.handleSnooze)
	})

	return r
}

type snoozeRequest struct {
	RefID string `json:"refId"`
	Type  string `json:"type"`
}

type snoozeResponse struct {
	Status         string    `json:"status"`
	RefID          string    `json:"refId"`
	NextEligibleAt time.Time `json:"nextEligibleAt"`
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	f, err := h.Feed.Build(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	receipt, err := h.Gateway.Submit(r.Context(), claims.Subject, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, receipt)
}

func (h *Handler) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	rec, err := h.Gateway.Snooze(r.Context(), claims.Subject, req.RefID, req.Type)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snoozeResponse{
		Status:         "rescheduled",
		RefID:          rec.ID,
		NextEligibleAt: rec.NextEligibleAt,
	})
}

// handleAppPage renders the feed server-side. The token comes from the query string
// because the page is opened from a link, and is handed to the page for its API calls.
func (h *Handler) handleAppPage(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = platformauth.BearerToken(r.Header.Get("Authorization"))
	}
	claims, err := h.Tokens.Parse(token)
	if err != nil {
		http.Error(w, "sign in again to see your pulses", http.StatusUnauthorized)
		return
	}
	f, err := h.Feed.Build(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(frontend.FeedPage(frontend.PageData{
		Token:        token,
		AdvanceDelay: int(h.AdvanceDelay / time.Millisecond),
		Feed:         f,
	})).ServeHTTP(w, r)
}

// StatusFor maps the pulse error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, pulse.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pulse.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pulse.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pulse.ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.OrNop(h.Log).Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		errtrack.Capture(err, map[string]string{"path": r.URL.Path})
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" {
		return "*"
	}
	if allowed == "*" {
		return allowed
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed {
		return origin
	}
	if isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Tokens.Parse(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, platformauth.ErrExpiredToken) {
				msg = "token expired"
			}
			h.writeError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}

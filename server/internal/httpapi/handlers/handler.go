package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/internal/auth/oidc"
	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/middleware"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/session"
)

// Exchanger runs the authorization code flow with the identity provider
type Exchanger interface {
	AuthCodeURL(state, nonce, verifier string) string
	Exchange(ctx context.Context, code, nonce, verifier string) (*oidc.Identity, error)
}

// IdentityResolver maps provider profiles onto local users
type IdentityResolver interface {
	Resolve(ctx context.Context, profile *entities.Profile) (*entities.User, error)
	GetUserByID(ctx context.Context, id string) (*entities.User, error)
	ListUsers(ctx context.Context) ([]*entities.User, error)
}

// TokenManager issues and verifies session tokens
type TokenManager interface {
	Issue(user *entities.User) (string, time.Time, error)
	Verify(token string) (*auth.SessionClaims, error)
	TokenDuration() time.Duration
}

// Handler holds dependencies for all API handlers
type Handler struct {
	cfg       *config.Config
	adapter   oidc.Adapter
	exchanger Exchanger
	resolver  IdentityResolver
	tokens    TokenManager
	sessions  *session.Manager
	health    repositories.HealthChecker
	log       *slog.Logger
}

// Deps groups the collaborators a Handler needs
type Deps struct {
	Config    *config.Config
	Adapter   oidc.Adapter
	Exchanger Exchanger
	Resolver  IdentityResolver
	Tokens    TokenManager
	Sessions  *session.Manager
	Health    repositories.HealthChecker // optional
	Logger    *slog.Logger
}

// New creates a new handler with dependencies
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       d.Config,
		adapter:   d.Adapter,
		exchanger: d.Exchanger,
		resolver:  d.Resolver,
		tokens:    d.Tokens,
		sessions:  d.Sessions,
		health:    d.Health,
		log:       logger.With(slog.String("component", "api_handler")),
	}
}

// Router builds the HTTP routes. CORS wraps the whole router so preflight
// requests are answered even though no route declares OPTIONS.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.LogRequest(h.log))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authMW := middleware.NewAuthMiddleware(h.tokens, h.log)

	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/callback/{provider}", h.Callback).Methods(http.MethodGet)
	api.Handle("/me", authMW.RequireAuth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	api.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	if !h.cfg.IsProduction() {
		api.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	}
	api.HandleFunc("/{provider}", h.Login).Methods(http.MethodGet)

	return middleware.CORS(h.cfg.FrontendURL)(r)
}

// Health reports liveness and, when the store supports it, store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			h.log.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/internal/domain/services"
	"github.com/devilmonastery/sessiongate/internal/pkg/logger"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/session"
)

// Login starts the authorization code flow: it stores state, nonce and PKCE verifier
// in the short-lived state cookie and redirects to the provider.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if provider != h.adapter.Name() {
		http.NotFound(w, r)
		return
	}

	ls := &session.LoginState{
		Provider: provider,
		State:    uuid.NewString(),
		Nonce:    uuid.NewString(),
		Verifier: oauth2.GenerateVerifier(),
	}
	if err := h.sessions.SaveLoginState(r, w, ls); err != nil {
		h.log.Error("failed to save login state", slog.String("error", err.Error()))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.exchanger.AuthCodeURL(ls.State, ls.Nonce, ls.Verifier), http.StatusFound)
}

// Callback completes the login: exchange, normalize, resolve, issue, set cookie.
// Every failure lands the browser on the frontend login page with a generic error.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	log := logger.WithProvider(h.log, provider, "")

	fail := func(step string, err error) {
		log.Warn("login failed", slog.String("step", step), slog.String("error", err.Error()))
		http.Redirect(w, r, h.cfg.LoginFailureRedirect(), http.StatusFound)
	}

	if provider != h.adapter.Name() {
		fail("provider", errors.New("unknown provider"))
		return
	}

	ls, err := h.sessions.PopLoginState(r, w)
	if err != nil {
		fail("state", err)
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		fail("authorize", errors.New("provider returned error: "+e))
		return
	}
	if ls.Provider != provider || q.Get("state") == "" || q.Get("state") != ls.State {
		fail("state", errors.New("state mismatch"))
		return
	}
	code := q.Get("code")
	if code == "" {
		fail("authorize", errors.New("missing authorization code"))
		return
	}

	identity, err := h.exchanger.Exchange(r.Context(), code, ls.Nonce, ls.Verifier)
	if err != nil {
		fail("exchange", err)
		return
	}

	profile, err := h.adapter.Normalize(identity.Claims, identity.AccessToken, identity.RefreshToken)
	if err != nil {
		fail("normalize", err)
		return
	}

	user, err := h.resolver.Resolve(r.Context(), profile)
	if err != nil {
		fail(services.GetResolutionFailureReason(err), err)
		return
	}

	token, _, err := h.tokens.Issue(user)
	if err != nil {
		fail("issue", err)
		return
	}

	session.SetAuthCookie(w, token, h.tokens.TokenDuration(), h.cfg.IsProduction())
	logger.WithUser(log, user.ID).Info("login succeeded")
	http.Redirect(w, r, h.cfg.LoginRedirect(), http.StatusFound)
}

// meResponse is the token-claims view returned when the store no longer has the user
type meResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

// Me returns the stored user for the session subject, or the token claims
// if the store has no record (e.g. the in-memory store restarted).
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.resolver.GetUserByID(r.Context(), userCtx.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case services.IsUserNotFound(err):
		writeJSON(w, http.StatusOK, meResponse{
			ID:         userCtx.UserID,
			ExternalID: userCtx.ExternalID,
			Email:      userCtx.Email,
			Name:       userCtx.Name,
			Company:    userCtx.Company,
			Locale:     userCtx.Locale,
		})
	default:
		h.log.Error("failed to load current user", slog.String("user_id", userCtx.UserID), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Logout discards the session cookie. Tokens are stateless, so this is the whole revocation.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session.ClearAuthCookie(w, h.cfg.IsProduction())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// ListUsers dumps the identity store. Only routed outside production.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.resolver.ListUsers(r.Context())
	if err != nil {
		h.log.Error("failed to list users", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

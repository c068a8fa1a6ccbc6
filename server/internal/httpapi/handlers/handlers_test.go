package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/internal/auth/oidc"
	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/services"
	"github.com/devilmonastery/sessiongate/internal/infrastructure/database/memory"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/session"
)

const frontend = "http://localhost:5173"

type fakeExchanger struct {
	claims   map[string]interface{}
	err      error
	gotCode  string
	gotNonce string
	gotPKCE  string
}

func (f *fakeExchanger) AuthCodeURL(state, nonce, verifier string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state) + "&nonce=" + url.QueryEscape(nonce)
}

func (f *fakeExchanger) Exchange(_ context.Context, code, nonce, verifier string) (*oidc.Identity, error) {
	f.gotCode, f.gotNonce, f.gotPKCE = code, nonce, verifier
	if f.err != nil {
		return nil, f.err
	}
	raw, err := json.Marshal(f.claims)
	if err != nil {
		return nil, err
	}
	return &oidc.Identity{Claims: raw, AccessToken: "at", RefreshToken: "rt"}, nil
}

type testEnv struct {
	handler   http.Handler
	exchanger *fakeExchanger
	repo      *memory.UserRepository
	tokens    *auth.JWTManager
	cfg       *config.Config
}

func newTestEnv(t *testing.T, env string) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Environment = env
	cfg.FrontendURL = frontend
	cfg.Auth.Provider.Name = "okta"

	repo := memory.NewUserRepository()
	tokens := auth.NewJWTManager("test-secret", auth.ParseExpiry("7d"))
	sessions, err := session.NewManager("state-secret", false)
	require.NoError(t, err)

	ex := &fakeExchanger{claims: map[string]interface{}{
		"sub":   "ext-1",
		"email": "alice@example.com",
		"name":  "Alice",
	}}

	h := New(Deps{
		Config:    cfg,
		Adapter:   oidc.NewStandardAdapter(oidc.Options{Name: "okta"}),
		Exchanger: ex,
		Resolver:  services.NewIdentityService(repo),
		Tokens:    tokens,
		Sessions:  sessions,
		Health:    repo,
	})
	return &testEnv{handler: h.Router(), exchanger: ex, repo: repo, tokens: tokens, cfg: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// startLogin runs the login redirect and returns the state and cookies the callback needs
func (e *testEnv) startLogin(t *testing.T) (string, []*http.Cookie) {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/okta", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state, rec.Result().Cookies()
}

func (e *testEnv) callback(query string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/okta?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.do(req)
}

func authCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.AuthCookieName {
			return c
		}
	}
	return nil
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/okta", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://idp.example.com/authorize"))

	var names []string
	for _, c := range rec.Result().Cookies() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, session.StateSessionName)
}

func TestLogin_UnknownProvider(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/github", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_Success(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	state, cookies := env.startLogin(t)

	rec := env.callback("code=abc&state="+url.QueryEscape(state), cookies)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, frontend+"/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "abc", env.exchanger.gotCode)
	assert.NotEmpty(t, env.exchanger.gotNonce)
	assert.NotEmpty(t, env.exchanger.gotPKCE)

	c := authCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)

	claims, err := env.tokens.Verify(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "ext-1", claims.ExternalID)

	u, err := env.repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID())
	assert.Equal(t, "okta", u.Provider)
	// capture_tokens is off
	assert.Empty(t, u.ProviderAccessToken)
}

func TestCallback_Failures(t *testing.T) {
	failure := frontend + "/login?error=oauth_failed"

	tests := []struct {
		name  string
		setup func(env *testEnv)
		query func(state string) string
		noJar bool
	}{
		{
			name:  "state mismatch",
			query: func(string) string { return "code=abc&state=forged" },
		},
		{
			name:  "missing state cookie",
			query: func(state string) string { return "code=abc&state=" + url.QueryEscape(state) },
			noJar: true,
		},
		{
			name:  "provider error",
			query: func(state string) string { return "error=access_denied&state=" + url.QueryEscape(state) },
		},
		{
			name:  "missing code",
			query: func(state string) string { return "state=" + url.QueryEscape(state) },
		},
		{
			name:  "exchange fails",
			setup: func(env *testEnv) { env.exchanger.err = errors.New("invalid_grant") },
			query: func(state string) string { return "code=abc&state=" + url.QueryEscape(state) },
		},
		{
			name: "missing email",
			setup: func(env *testEnv) {
				env.exchanger.claims = map[string]interface{}{"sub": "ext-1", "name": "Alice"}
			},
			query: func(state string) string { return "code=abc&state=" + url.QueryEscape(state) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.EnvDevelopment)
			if tt.setup != nil {
				tt.setup(env)
			}
			state, cookies := env.startLogin(t)
			if tt.noJar {
				cookies = nil
			}

			rec := env.callback(tt.query(state), cookies)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, failure, rec.Header().Get("Location"))
			assert.Nil(t, authCookie(rec))

			users, err := env.repo.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, users)
		})
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	state, cookies := env.startLogin(t)
	c := authCookie(env.callback("code=abc&state="+url.QueryEscape(state), cookies))
	require.NotNil(t, c)

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(c)
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, "Alice", body["name"])
		assert.NotContains(t, body, "providerAccessToken")
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+c.Value)
		assert.Equal(t, http.StatusOK, env.do(req).Code)
	})

	t.Run("no token", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+c.Value+"x")
		assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	})
}

func TestMe_FallsBackToClaims(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)

	company := "Acme"
	token, _, err := env.tokens.Issue(&entities.User{
		ID:         "gone",
		ExternalID: "ext-9",
		Email:      "ghost@example.com",
		Name:       "Ghost",
		Company:    &company,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, meResponse{
		ID:         "gone",
		ExternalID: "ext-9",
		Email:      "ghost@example.com",
		Name:       "Ghost",
		Company:    "Acme",
	}, body)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())

	c := authCookie(rec)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestListUsers_OnlyOutsideProduction(t *testing.T) {
	dev := newTestEnv(t, config.EnvDevelopment)
	rec := dev.do(httptest.NewRequest(http.MethodGet, "/api/auth/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	prod := newTestEnv(t, config.EnvProduction)
	rec = prod.do(httptest.NewRequest(http.MethodGet, "/api/auth/users", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessiongate_")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, config.EnvDevelopment)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/me", nil)
	req.Header.Set("Origin", frontend)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := env.do(req)
	assert.Equal(t, frontend, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

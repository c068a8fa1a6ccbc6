package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env-secret")
	path := writeConfig(t, `
environment: development
server:
  host: 0.0.0.0
  port: 8081
frontend_url: https://app.example.com
auth:
  jwt:
    secret: ${TEST_JWT_SECRET}
    expiration: 7d
  provider:
    name: okta
    type: embedded
    issuer: https://idp.example.com
    client_id: client
    redirect_url: https://api.example.com/api/auth/callback/okta
    capture_tokens: true
store:
  backend: sqlite
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8081", cfg.Server.Addr())
	assert.Equal(t, "from-env-secret", cfg.Auth.JWT.Secret)
	assert.Equal(t, "from-env-secret", cfg.Auth.SessionSecret, "session secret falls back to the jwt secret")
	assert.Equal(t, "7d", cfg.Auth.JWT.Expiration)
	assert.Equal(t, "sessiongate", cfg.Auth.JWT.Issuer, "unset keys keep defaults")
	assert.Equal(t, "embedded", cfg.Auth.Provider.Type)
	assert.True(t, cfg.Auth.Provider.CaptureTokens)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.Provider.Scopes)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "https://app.example.com/dashboard", cfg.LoginRedirect())
	assert.Equal(t, "https://app.example.com/login?error=oauth_failed", cfg.LoginFailureRedirect())
	assert.NoError(t, cfg.Auth.Provider.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	path := writeConfig(t, `
environment: staging
server:
  port: 0
frontend_url: not a url
store:
  backend: postgres
`)

	_, err := Load(path)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"NODE_ENV":            "production",
		"PORT":                "9000",
		"JWT_SECRET":          "s",
		"JWT_EXPIRATION":      "15m",
		"APP_SECRET":          "app",
		"FRONTEND_URL":        "https://spa.example.com",
		"OIDC_ISSUER":         "https://idp.example.com",
		"OIDC_CLIENT_ID":      "cid",
		"OIDC_CALLBACK_URL":   "https://api.example.com/cb",
		"OIDC_SCOPES":         "openid,email offline_access",
		"OIDC_CAPTURE_TOKENS": "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Defaults()
	require.NoError(t, applyEnvOverrides(cfg, lookup))

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "15m", cfg.Auth.JWT.Expiration)
	assert.Equal(t, "app", cfg.Auth.SessionSecret)
	assert.Equal(t, "https://api.example.com/cb", cfg.Auth.Provider.RedirectURL)
	assert.Equal(t, []string{"openid", "email", "offline_access"}, cfg.Auth.Provider.Scopes)
	assert.True(t, cfg.Auth.Provider.CaptureTokens)
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	env := map[string]string{"PORT": "eighty", "OIDC_CAPTURE_TOKENS": "maybe"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := applyEnvOverrides(Defaults(), lookup)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestValidate_ProductionSecretLength(t *testing.T) {
	cfg := Defaults()
	cfg.Environment = EnvProduction
	cfg.Auth.JWT.Secret = "short"
	assert.Error(t, validate(cfg))

	cfg.Auth.JWT.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, validate(cfg))
}

func TestProviderConfig_Validate(t *testing.T) {
	err := ProviderConfig{}.Validate()
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.NotContains(t, ProviderConfig{ClientSecret: "hush"}.String(), "hush")
}

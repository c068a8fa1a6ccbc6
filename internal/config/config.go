package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/devilmonastery/sessiongate/internal/pkg/urlutil"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Environment string        `yaml:"environment"` // development, production
	Server      ServerConfig  `yaml:"server"`
	FrontendURL string        `yaml:"frontend_url"` // SPA origin; login redirects and CORS target it
	Auth        AuthConfig    `yaml:"auth"`
	Store       StoreConfig   `yaml:"store"`
	Logging     LoggingConfig `yaml:"logging"`
}

// ServerConfig holds general server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for net/http
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWT           JWTConfig      `yaml:"jwt"`
	SessionSecret string         `yaml:"session_secret"` // Key material for the short-lived OAuth state cookie
	Provider      ProviderConfig `yaml:"provider"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret     string `yaml:"secret"`     // HMAC key for signing session tokens
	Expiration string `yaml:"expiration"` // "<n><d|h|m|s>", unparseable values mean 30 days
	Issuer     string `yaml:"issuer"`
}

// ProviderConfig holds the single OIDC provider configuration
type ProviderConfig struct {
	Name          string   `yaml:"name"` // Tag stored on every user, e.g. "okta"
	Type          string   `yaml:"type"` // Adapter: standard, embedded, passport
	Issuer        string   `yaml:"issuer"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret,omitempty"`
	RedirectURL   string   `yaml:"redirect_url"`
	Scopes        []string `yaml:"scopes,omitempty"`
	CaptureTokens bool     `yaml:"capture_tokens"` // Keep provider access/refresh tokens on the server-side user record
}

// StoreConfig selects the identity store backend
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	DSN     string `yaml:"dsn,omitempty"`
}

// LoggingConfig holds logging defaults; command-line flags take precedence
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// IsProduction reports whether production-only behavior (secure cookies, no debug routes) applies
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// LoginRedirect returns the frontend URL the browser lands on after a successful login
func (c *Config) LoginRedirect() string {
	return c.frontendURL("/dashboard", nil)
}

// LoginFailureRedirect returns the frontend URL used when any step of the login fails
func (c *Config) LoginFailureRedirect() string {
	return c.frontendURL("/login", url.Values{"error": {"oauth_failed"}})
}

func (c *Config) frontendURL(path string, query url.Values) string {
	u, err := urlutil.BuildFrontendURL(c.FrontendURL, path, query)
	if err != nil {
		// validate rejects unparseable frontend URLs, so this only happens on hand-built configs
		u = strings.TrimRight(c.FrontendURL, "/") + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
	}
	return u
}

// String renders the provider without its secret
func (p ProviderConfig) String() string {
	return fmt.Sprintf("%s(type=%s issuer=%s client_id=%s)", p.Name, p.Type, p.Issuer, p.ClientID)
}

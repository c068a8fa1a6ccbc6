package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
// Uses Go's built-in os.ExpandEnv which is the idiomatic way to handle this
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"./configs/development.yaml",
	"/etc/sessiongate/config.yaml",
	"/etc/sessiongate/config.yml",
}

// Defaults returns a configuration with every optional field filled in
func Defaults() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		FrontendURL: "http://localhost:5173",
		Auth: AuthConfig{
			JWT: JWTConfig{
				Expiration: "30d",
				Issuer:     "sessiongate",
			},
			Provider: ProviderConfig{
				Name:   "oidc",
				Type:   "standard",
				Scopes: []string{"openid", "profile", "email"},
			},
		},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the configuration from the specified file or default locations,
// then applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	config := Defaults()

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if !fileExists(configPath) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		slog.Debug("loading config", slog.String("path", configPath))
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		slog.Debug("no config file found, using defaults and environment")
	}

	if err := applyEnvOverrides(config, os.LookupEnv); err != nil {
		return nil, err
	}

	// The state cookie falls back to the JWT key so a single secret is enough in development
	if config.Auth.SessionSecret == "" {
		config.Auth.SessionSecret = config.Auth.JWT.Secret
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides lets deployment environments override individual keys without a config file
func applyEnvOverrides(c *Config, lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Environment, "ENVIRONMENT", "NODE_ENV")
	str(&c.Server.Host, "HOST")
	str(&c.FrontendURL, "FRONTEND_URL")
	str(&c.Auth.JWT.Secret, "JWT_SECRET")
	str(&c.Auth.JWT.Expiration, "JWT_EXPIRATION")
	str(&c.Auth.JWT.Issuer, "JWT_ISSUER")
	str(&c.Auth.SessionSecret, "APP_SECRET", "SESSION_SECRET")
	str(&c.Auth.Provider.Name, "OIDC_PROVIDER_NAME")
	str(&c.Auth.Provider.Type, "OIDC_PROVIDER_TYPE")
	str(&c.Auth.Provider.Issuer, "OIDC_ISSUER")
	str(&c.Auth.Provider.ClientID, "OIDC_CLIENT_ID")
	str(&c.Auth.Provider.ClientSecret, "OIDC_CLIENT_SECRET")
	str(&c.Auth.Provider.RedirectURL, "OIDC_REDIRECT_URL", "OIDC_CALLBACK_URL")
	str(&c.Store.Backend, "STORE_BACKEND")
	str(&c.Store.DSN, "STORE_DSN")
	str(&c.Logging.Level, "LOG_LEVEL")

	var errs *multierror.Error
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("PORT: %w", err))
		} else {
			c.Server.Port = port
		}
	}
	if v, ok := lookup("OIDC_SCOPES"); ok && v != "" {
		c.Auth.Provider.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v, ok := lookup("OIDC_CAPTURE_TOKENS"); ok && v != "" {
		capture, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("OIDC_CAPTURE_TOKENS: %w", err))
		} else {
			c.Auth.Provider.CaptureTokens = capture
		}
	}
	return errs.ErrorOrNil()
}

// validate performs basic validation on the configuration.
// Every problem is reported, not just the first.
func validate(config *Config) error {
	var errs *multierror.Error

	switch strings.ToLower(config.Environment) {
	case EnvDevelopment, EnvProduction, "test":
	default:
		errs = multierror.Append(errs, fmt.Errorf("environment must be development, production or test, got %q", config.Environment))
	}

	// Validate server port is reasonable
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		errs = multierror.Append(errs, errors.New("server.port must be between 1 and 65535"))
	}

	if config.Auth.JWT.Secret == "" {
		errs = multierror.Append(errs, errors.New("auth.jwt.secret is required"))
	} else if config.IsProduction() && len(config.Auth.JWT.Secret) < 32 {
		errs = multierror.Append(errs, errors.New("auth.jwt.secret must be at least 32 bytes in production"))
	}

	if u, err := url.Parse(config.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("frontend_url must be an absolute URL, got %q", config.FrontendURL))
	}

	switch config.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		errs = multierror.Append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", StoreMemory, StoreSQLite, config.Store.Backend))
	}

	return errs.ErrorOrNil()
}

// Validate checks the fields needed to talk to the identity provider.
// It is separate from Load because offline commands never contact the provider.
func (p ProviderConfig) Validate() error {
	var errs *multierror.Error
	if p.Name == "" {
		errs = multierror.Append(errs, errors.New("auth.provider.name is required"))
	}
	if p.Type == "" {
		errs = multierror.Append(errs, errors.New("auth.provider.type is required"))
	}
	if p.Issuer == "" {
		errs = multierror.Append(errs, errors.New("auth.provider.issuer is required for OIDC discovery"))
	}
	if p.ClientID == "" {
		errs = multierror.Append(errs, errors.New("auth.provider.client_id is required"))
	}
	if p.RedirectURL == "" {
		errs = multierror.Append(errs, errors.New("auth.provider.redirect_url is required"))
	}
	return errs.ErrorOrNil()
}

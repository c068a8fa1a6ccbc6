package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

// Identity is what a completed authorization code exchange yields
type Identity struct {
	// Claims is the JSON claim document: verified ID token claims with userinfo merged on top
	Claims       []byte
	AccessToken  string
	RefreshToken string
}

// Client runs the authorization code flow against one OIDC provider.
// Discovery and JWKS handling are delegated to go-oidc.
type Client struct {
	name     string
	provider *gooidc.Provider
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
	logger   *slog.Logger
}

// NewClient discovers the provider configuration and prepares the OAuth2 client
func NewClient(ctx context.Context, cfg config.ProviderConfig) (*Client, error) {
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider for %s: %w", cfg.Issuer, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Client{
		name:     cfg.Name,
		provider: provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		logger:   slog.Default().With(slog.String("component", "oidc_client"), slog.String("provider", cfg.Name)),
	}, nil
}

// AuthCodeURL builds the authorization URL with state, nonce and an S256 PKCE challenge
func (c *Client) AuthCodeURL(state, nonce, verifier string) string {
	return c.oauth.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the authorization code for tokens, verifies the ID token and
// merges the userinfo response over its claims.
func (c *Client) Exchange(ctx context.Context, code, nonce, verifier string) (*Identity, error) {
	identity, err := c.exchange(ctx, code, nonce, verifier)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProviderExchanges.WithLabelValues(c.name, status).Inc()
	return identity, err
}

func (c *Client) exchange(ctx context.Context, code, nonce, verifier string) (*Identity, error) {
	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("no id_token in token response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("ID token nonce mismatch")
	}

	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	// Email and profile claims often only come from userinfo
	userInfo, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		c.logger.Warn("userinfo unavailable, using ID token claims only", slog.String("error", err.Error()))
	} else {
		if userInfo.Subject != idToken.Subject {
			return nil, fmt.Errorf("userinfo subject %q does not match ID token subject", userInfo.Subject)
		}
		extra := map[string]interface{}{}
		if err := userInfo.Claims(&extra); err != nil {
			return nil, fmt.Errorf("failed to parse userinfo claims: %w", err)
		}
		for k, v := range extra {
			claims[k] = v
		}
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}

	return &Identity{
		Claims:       raw,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

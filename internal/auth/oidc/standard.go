package oidc

import "github.com/devilmonastery/sessiongate/internal/domain/entities"

// Adapter type names accepted in auth.provider.type
const (
	TypeStandard = "standard"
	TypeEmbedded = "embedded"
	TypePassport = "passport"
)

// StandardAdapter reads OpenID Connect standard claims
type StandardAdapter struct {
	opts Options
}

// NewStandardAdapter creates an adapter for providers that follow the standard claim names
func NewStandardAdapter(opts Options) *StandardAdapter {
	return &StandardAdapter{opts: opts}
}

// Name returns the provider tag
func (a *StandardAdapter) Name() string {
	return a.opts.Name
}

// Normalize maps standard claims onto a profile
func (a *StandardAdapter) Normalize(raw []byte, accessToken, refreshToken string) (*entities.Profile, error) {
	claims, err := decodeClaims(raw)
	if err != nil {
		return nil, err
	}

	first := claims.str("given_name")
	last := claims.str("family_name")
	email := claims.str("email")

	// Try various name fields in order of preference
	name := claims.str("name")
	if name == "" {
		name = joinName(first, last)
	}
	if name == "" {
		name = claims.str("preferred_username", "nickname")
	}
	if name == "" {
		name = email
	}

	profile := &entities.Profile{
		ExternalID:    claims.subject(),
		Email:         email,
		Name:          name,
		FirstName:     first,
		LastName:      last,
		EmailVerified: claims.boolean("email_verified", "verified"),
		Locale:        entities.StringPtr(claims.str("locale")),
		Company:       entities.StringPtr(claims.str("company", "organization")),
	}
	return finish(profile, a.opts, accessToken, refreshToken)
}

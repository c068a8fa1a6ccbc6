package oidc

import (
	"strings"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

// PassportAdapter handles the {id, username, displayName, emails:[{value}]} profile shape
type PassportAdapter struct {
	opts Options
}

// NewPassportAdapter creates an adapter for passport-style profiles
func NewPassportAdapter(opts Options) *PassportAdapter {
	return &PassportAdapter{opts: opts}
}

// Name returns the provider tag
func (a *PassportAdapter) Name() string {
	return a.opts.Name
}

// Normalize maps a passport-style profile. Email comes only from the emails array
// and is treated as verified by the provider.
func (a *PassportAdapter) Normalize(raw []byte, accessToken, refreshToken string) (*entities.Profile, error) {
	claims, err := decodeClaims(raw)
	if err != nil {
		return nil, err
	}

	email := claims.firstEmail()

	name := claims.str("username", "displayName")
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	var first, last string
	if nameObj, ok := claims["name"].(map[string]interface{}); ok {
		first, _ = nameObj["givenName"].(string)
		last, _ = nameObj["familyName"].(string)
	}

	profile := &entities.Profile{
		ExternalID:    claims.subject(),
		Email:         email,
		Name:          name,
		FirstName:     first,
		LastName:      last,
		EmailVerified: true,
		Locale:        entities.StringPtr(defaultLocale),
	}
	return finish(profile, a.opts, accessToken, refreshToken)
}

package oidc

import (
	"encoding/json"
	"log/slog"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

const defaultLocale = "en"

// embeddedUserinfo is the JSON document some providers pack into a string claim
type embeddedUserinfo struct {
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
	Culture   string `json:"Culture"`
}

// EmbeddedAdapter handles providers whose name and culture arrive as a JSON string
// inside the "userinfo" claim rather than as standard claims.
type EmbeddedAdapter struct {
	opts   Options
	logger *slog.Logger
}

// NewEmbeddedAdapter creates an adapter for embedded-userinfo providers
func NewEmbeddedAdapter(opts Options) *EmbeddedAdapter {
	return &EmbeddedAdapter{
		opts:   opts,
		logger: slog.Default().With(slog.String("adapter", TypeEmbedded), slog.String("provider", opts.Name)),
	}
}

// Name returns the provider tag
func (a *EmbeddedAdapter) Name() string {
	return a.opts.Name
}

// Normalize decodes the embedded userinfo and maps it onto a profile.
// A missing or malformed userinfo document is not fatal; names stay empty and the locale defaults to "en".
func (a *EmbeddedAdapter) Normalize(raw []byte, accessToken, refreshToken string) (*entities.Profile, error) {
	claims, err := decodeClaims(raw)
	if err != nil {
		return nil, err
	}

	info := embeddedUserinfo{Culture: defaultLocale}
	if doc := claims.str("userinfo"); doc != "" {
		var parsed embeddedUserinfo
		if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
			a.logger.Warn("failed to parse embedded userinfo", slog.String("error", err.Error()))
		} else {
			info = parsed
		}
	}

	email := claims.str("email")
	if email == "" {
		email = claims.firstEmail()
	}

	var name string
	if info.FirstName != "" && info.LastName != "" {
		name = joinName(info.FirstName, info.LastName)
	} else {
		name = claims.str("preferred_username")
		if name == "" {
			name = email
		}
	}

	locale := info.Culture
	if locale == "" {
		locale = defaultLocale
	}

	profile := &entities.Profile{
		ExternalID:    claims.subject(),
		Email:         email,
		Name:          name,
		FirstName:     info.FirstName,
		LastName:      info.LastName,
		EmailVerified: claims.boolean("email_verified"),
		Locale:        entities.StringPtr(locale),
		Company:       entities.StringPtr(claims.str("company")),
	}
	return finish(profile, a.opts, accessToken, refreshToken)
}

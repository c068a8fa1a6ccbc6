package oidc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

// rawClaims is a decoded claim document with lenient typed accessors
type rawClaims map[string]interface{}

func decodeClaims(raw []byte) (rawClaims, error) {
	var claims rawClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims are not a JSON object: %v", entities.ErrInvalidProfile, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: empty claims", entities.ErrInvalidProfile)
	}
	return claims, nil
}

// str returns the first non-empty string among keys, in order of preference
func (c rawClaims) str(keys ...string) string {
	for _, key := range keys {
		if v, ok := c[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// boolean accepts JSON booleans and the string forms some providers send
func (c rawClaims) boolean(keys ...string) bool {
	for _, key := range keys {
		switch v := c[key].(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		}
	}
	return false
}

// firstEmail returns the value of the first entry in a passport-style emails array
func (c rawClaims) firstEmail() string {
	list, ok := c["emails"].([]interface{})
	if !ok {
		return ""
	}
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := entry["value"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// subject reads sub, falling back to a string or numeric id
func (c rawClaims) subject() string {
	if s := c.str("sub", "id"); s != "" {
		return s
	}
	if n, ok := c["id"].(float64); ok {
		return fmt.Sprintf("%.0f", n)
	}
	return ""
}

// finish applies the shared tail of every adapter: provider tag, token policy, validation
func finish(p *entities.Profile, opts Options, accessToken, refreshToken string) (*entities.Profile, error) {
	p.Provider = opts.Name
	if opts.CaptureTokens {
		p.AccessToken = accessToken
		p.RefreshToken = refreshToken
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

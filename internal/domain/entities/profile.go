package entities

import (
	"errors"
	"fmt"
)

// ErrInvalidProfile is returned when a provider profile lacks a mandatory identity field
var ErrInvalidProfile = errors.New("invalid identity profile")

// Profile is the provider-neutral shape of an external login.
// It is produced by a provider adapter and consumed once by the identity resolver.
type Profile struct {
	ExternalID    string
	Email         string
	Name          string
	FirstName     string
	LastName      string
	EmailVerified bool
	Locale        *string
	Company       *string
	Provider      string

	// Only populated when the adapter is configured to capture provider tokens
	AccessToken  string
	RefreshToken string
}

// Validate checks the identity anchors. Email and external id are never invented.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: profile is nil", ErrInvalidProfile)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidProfile)
	}
	if p.ExternalID == "" {
		return fmt.Errorf("%w: external id is required", ErrInvalidProfile)
	}
	if p.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidProfile)
	}
	return nil
}

// ProviderKey returns a formatted provider+external_id string for logging and locking
func (p *Profile) ProviderKey() string {
	return p.Provider + ":" + p.ExternalID
}

// StringPtr returns nil for the empty string so absent optional fields stay unset
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

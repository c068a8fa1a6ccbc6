package entities

import "time"

// User represents a local account resolved from an identity provider login
type User struct {
	ID            string    `json:"id" db:"id"`
	ExternalID    string    `json:"externalId" db:"external_id"` // provider's 'sub' claim, empty for email-only accounts
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	FirstName     string    `json:"firstName" db:"first_name"`
	LastName      string    `json:"lastName" db:"last_name"`
	Company       *string   `json:"company,omitempty" db:"company"` // nil when the provider did not send one
	Locale        *string   `json:"locale,omitempty" db:"locale"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"` // asserted by the provider, not checked by us
	Provider      string    `json:"provider" db:"provider"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	LastLoginAt   time.Time `json:"lastLoginAt" db:"last_login_at"`

	// Provider credentials are only kept when token capture is enabled.
	// They never leave the server.
	ProviderAccessToken  string `json:"-" db:"provider_access_token"`
	ProviderRefreshToken string `json:"-" db:"provider_refresh_token"`
}

// ProviderKey returns a formatted provider+external_id string for logging and locking
func (u *User) ProviderKey() string {
	return u.Provider + ":" + u.ExternalID
}

// HasExternalIdentity reports whether the account is linked to a provider subject
func (u *User) HasExternalIdentity() bool {
	return u.ExternalID != ""
}

// Clone returns a deep copy so stores never hand out their internal records
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Company != nil {
		company := *u.Company
		c.Company = &company
	}
	if u.Locale != nil {
		locale := *u.Locale
		c.Locale = &locale
	}
	return &c
}

// CompanyOrEmpty returns the company or "" when unset
func (u *User) CompanyOrEmpty() string {
	if u.Company == nil {
		return ""
	}
	return *u.Company
}

// LocaleOrEmpty returns the locale or "" when unset
func (u *User) LocaleOrEmpty() string {
	if u.Locale == nil {
		return ""
	}
	return *u.Locale
}

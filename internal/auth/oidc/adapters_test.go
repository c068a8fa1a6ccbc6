package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

func TestStandardAdapter(t *testing.T) {
	a := NewStandardAdapter(Options{Name: "okta"})
	raw := []byte(`{
		"sub": "ext-1",
		"email": "a@x.com",
		"email_verified": true,
		"name": "Ada Lovelace",
		"given_name": "Ada",
		"family_name": "Lovelace",
		"locale": "en-GB",
		"company": "Analytical"
	}`)

	p, err := a.Normalize(raw, "at", "rt")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", p.ExternalID)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.True(t, p.EmailVerified)
	assert.Equal(t, "en-GB", *p.Locale)
	assert.Equal(t, "Analytical", *p.Company)
	assert.Equal(t, "okta", p.Provider)
	assert.Empty(t, p.AccessToken, "tokens are dropped unless capture is enabled")
	assert.Empty(t, p.RefreshToken)
}

func TestStandardAdapter_NameFallbacks(t *testing.T) {
	a := NewStandardAdapter(Options{Name: "p"})
	tests := []struct {
		raw  string
		want string
	}{
		{`{"sub":"1","email":"a@x.com","given_name":"Ada","family_name":"L"}`, "Ada L"},
		{`{"sub":"1","email":"a@x.com","preferred_username":"ada"}`, "ada"},
		{`{"sub":"1","email":"a@x.com"}`, "a@x.com"},
	}
	for _, tt := range tests {
		p, err := a.Normalize([]byte(tt.raw), "", "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Name)
		assert.Nil(t, p.Locale)
		assert.Nil(t, p.Company)
	}
}

func TestEmbeddedAdapter(t *testing.T) {
	a := NewEmbeddedAdapter(Options{Name: "beproduct"})
	raw := []byte(`{
		"sub": "ext-1",
		"email": "a@x.com",
		"email_verified": true,
		"preferred_username": "ada",
		"company": "Acme",
		"userinfo": "{\"FirstName\":\"Ada\",\"LastName\":\"Lovelace\",\"Culture\":\"fr-FR\"}"
	}`)

	p, err := a.Normalize(raw, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.Name)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "fr-FR", *p.Locale)
	assert.Equal(t, "Acme", *p.Company)
	assert.True(t, p.EmailVerified)
	assert.Equal(t, "beproduct", p.Provider)
}

func TestEmbeddedAdapter_MalformedUserinfo(t *testing.T) {
	a := NewEmbeddedAdapter(Options{Name: "beproduct"})
	tests := []struct {
		name     string
		raw      string
		wantName string
	}{
		{"malformed json", `{"sub":"1","email":"a@x.com","preferred_username":"ada","userinfo":"{not json"}`, "ada"},
		{"absent", `{"sub":"1","email":"a@x.com"}`, "a@x.com"},
		{"only first name", `{"sub":"1","email":"a@x.com","userinfo":"{\"FirstName\":\"Ada\"}"}`, "a@x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Normalize([]byte(tt.raw), "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, "en", *p.Locale)
			assert.False(t, p.EmailVerified)
		})
	}
}

func TestPassportAdapter(t *testing.T) {
	a := NewPassportAdapter(Options{Name: "github"})

	p, err := a.Normalize([]byte(`{"id":"42","username":"ada","displayName":"Ada L","emails":[{"value":"a@x.com"},{"value":"b@x.com"}]}`), "", "")
	require.NoError(t, err)
	assert.Equal(t, "42", p.ExternalID)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "ada", p.Name)
	assert.True(t, p.EmailVerified)
	assert.Equal(t, "en", *p.Locale)

	p, err = a.Normalize([]byte(`{"id":7,"displayName":"Ada L","emails":[{"value":"a@x.com"}]}`), "", "")
	require.NoError(t, err)
	assert.Equal(t, "7", p.ExternalID)
	assert.Equal(t, "Ada L", p.Name)

	p, err = a.Normalize([]byte(`{"id":"7","emails":[{"value":"ada@x.com"}]}`), "", "")
	require.NoError(t, err)
	assert.Equal(t, "ada", p.Name)
}

func TestAdapters_MissingEmail(t *testing.T) {
	tests := []struct {
		name    string
		adapter Adapter
		raw     string
	}{
		{"standard", NewStandardAdapter(Options{Name: "p"}), `{"sub":"1","name":"A"}`},
		{"embedded", NewEmbeddedAdapter(Options{Name: "p"}), `{"sub":"1","userinfo":"{}"}`},
		{"passport no array", NewPassportAdapter(Options{Name: "p"}), `{"id":"1","username":"a"}`},
		{"passport empty array", NewPassportAdapter(Options{Name: "p"}), `{"id":"1","emails":[]}`},
		{"not an object", NewStandardAdapter(Options{Name: "p"}), `["sub"]`},
		{"not json", NewStandardAdapter(Options{Name: "p"}), `garbage`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.adapter.Normalize([]byte(tt.raw), "", "")
			assert.ErrorIs(t, err, entities.ErrInvalidProfile)
		})
	}
}

func TestAdapters_MissingSubject(t *testing.T) {
	_, err := NewStandardAdapter(Options{Name: "p"}).Normalize([]byte(`{"email":"a@x.com"}`), "", "")
	assert.ErrorIs(t, err, entities.ErrInvalidProfile)
}

func TestCaptureTokensPolicy(t *testing.T) {
	raw := []byte(`{"sub":"1","email":"a@x.com"}`)

	p, err := NewStandardAdapter(Options{Name: "p", CaptureTokens: true}).Normalize(raw, "at", "rt")
	require.NoError(t, err)
	assert.Equal(t, "at", p.AccessToken)
	assert.Equal(t, "rt", p.RefreshToken)
}

func TestNewAdapter(t *testing.T) {
	assert.Equal(t, []string{TypeEmbedded, TypePassport, TypeStandard}, DefaultRegistry.List())

	a, err := NewAdapter(config.ProviderConfig{Name: "okta", Type: TypeEmbedded})
	require.NoError(t, err)
	assert.IsType(t, &EmbeddedAdapter{}, a)
	assert.Equal(t, "okta", a.Name())

	_, err = NewAdapter(config.ProviderConfig{Name: "okta", Type: "saml"})
	assert.Error(t, err)
}

package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	// StateSessionName is the name of the short-lived cookie that carries OAuth state
	StateSessionName = "sessiongate_oauth"

	// StateMaxAge bounds how long a user may take at the provider's login page
	StateMaxAge = 10 * 60

	stateKey    = "state"
	nonceKey    = "nonce"
	verifierKey = "verifier"
	providerKey = "provider"
)

// ErrNoLoginState is returned when the callback arrives without a matching login attempt
var ErrNoLoginState = errors.New("no login in progress")

// LoginState is what the login start hands to the callback
type LoginState struct {
	Provider string
	State    string
	Nonce    string
	Verifier string // PKCE code verifier
}

// Manager wraps gorilla/sessions for the OAuth round trip only.
// The session token itself lives in its own cookie, see SetAuthCookie.
type Manager struct {
	store *sessions.CookieStore
}

// deriveKeys stretches the configured secret into independent signing and encryption keys
func deriveKeys(secret string) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("sessiongate oauth state cookie"))
	hashKey = make([]byte, 64)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, err
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, err
	}
	return hashKey, blockKey, nil
}

// NewManager creates a new session manager.
// secure marks the cookie Secure, which production deployments behind HTTPS need.
func NewManager(secret string, secure bool) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	hashKey, blockKey, err := deriveKeys(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   StateMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(StateMaxAge)

	return &Manager{store: store}, nil
}

// SaveLoginState stores the state, nonce and PKCE verifier for the callback
func (m *Manager) SaveLoginState(r *http.Request, w http.ResponseWriter, ls *LoginState) error {
	session, err := m.store.Get(r, StateSessionName)
	if err != nil {
		// Undecodable leftovers from an older secret; start over
		session, _ = m.store.New(r, StateSessionName)
	}

	session.Values[providerKey] = ls.Provider
	session.Values[stateKey] = ls.State
	session.Values[nonceKey] = ls.Nonce
	session.Values[verifierKey] = ls.Verifier
	return session.Save(r, w)
}

// PopLoginState returns the pending login state and deletes the cookie so a state is used at most once
func (m *Manager) PopLoginState(r *http.Request, w http.ResponseWriter) (*LoginState, error) {
	session, err := m.store.Get(r, StateSessionName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLoginState, err)
	}
	if session.IsNew {
		return nil, ErrNoLoginState
	}

	ls := &LoginState{}
	ls.Provider, _ = session.Values[providerKey].(string)
	ls.State, _ = session.Values[stateKey].(string)
	ls.Nonce, _ = session.Values[nonceKey].(string)
	ls.Verifier, _ = session.Values[verifierKey].(string)

	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to clear login state: %w", err)
	}

	if ls.State == "" || ls.Verifier == "" {
		return nil, ErrNoLoginState
	}
	return ls, nil
}

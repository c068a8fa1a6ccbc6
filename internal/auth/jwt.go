package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

// Verification failures. The transport reports all of them as "not authenticated".
var (
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformedToken   = errors.New("malformed token")
)

// DefaultIssuer is used when no issuer is configured
const DefaultIssuer = "sessiongate"

// SessionClaims is the claim set carried by a session token.
// Provider access and refresh tokens are never part of it.
type SessionClaims struct {
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Locale     string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject, which is the local user id
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// JWTManager handles session token creation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
	now           func() time.Time
}

// JWTOption configures a JWTManager
type JWTOption func(*JWTManager)

// WithIssuer sets the iss claim written and required by the manager
func WithIssuer(issuer string) JWTOption {
	return func(m *JWTManager) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithClock overrides the time source for issuing and validating tokens
func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) { m.now = now }
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, tokenDuration time.Duration, opts ...JWTOption) *JWTManager {
	m := &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		issuer:        DefaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TokenDuration returns how long issued tokens stay valid
func (m *JWTManager) TokenDuration() time.Duration {
	return m.tokenDuration
}

// Issue creates a signed session token for a user
func (m *JWTManager) Issue(user *entities.User) (string, time.Time, error) {
	if len(m.secretKey) == 0 {
		metrics.TokensIssued.WithLabelValues("error").Inc()
		return "", time.Time{}, errors.New("jwt signing secret is not configured")
	}
	if user == nil || user.ID == "" {
		metrics.TokensIssued.WithLabelValues("error").Inc()
		return "", time.Time{}, errors.New("cannot issue a token without a user id")
	}

	now := m.now()
	expiresAt := now.Add(m.tokenDuration)

	claims := SessionClaims{
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Name:       user.Name,
		Company:    user.CompanyOrEmpty(),
		Locale:     user.LocaleOrEmpty(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		metrics.TokensIssued.WithLabelValues("error").Inc()
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues("success").Inc()
	return tokenString, expiresAt, nil
}

// Verify validates a session token and returns its claims.
// Errors wrap ErrExpiredToken, ErrInvalidSignature or ErrMalformedToken.
func (m *JWTManager) Verify(tokenString string) (*SessionClaims, error) {
	claims, err := m.verify(tokenString)
	metrics.TokenVerifications.WithLabelValues(VerificationResult(err)).Inc()
	return claims, err
}

func (m *JWTManager) verify(tokenString string) (*SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)

	claims := &SessionClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	})
	if err != nil {
		// The signature is checked before any claim, so these only fire on authentic tokens
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrMalformedToken)
	}
	return claims, nil
}

// VerificationResult classifies a Verify error for logs and metrics
func VerificationResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	default:
		return "invalid_signature"
	}
}

package auth

import (
	"context"
	"errors"
)

var ErrUnauthorized = errors.New("unauthorized")

// UserContext contains authenticated user information
type UserContext struct {
	UserID     string
	ExternalID string
	Email      string
	Name       string
	Company    string
	Locale     string
	TokenID    string
}

// UserContextFromClaims builds the request identity from verified session claims
func UserContextFromClaims(c *SessionClaims) *UserContext {
	return &UserContext{
		UserID:     c.Subject,
		ExternalID: c.ExternalID,
		Email:      c.Email,
		Name:       c.Name,
		Company:    c.Company,
		Locale:     c.Locale,
		TokenID:    c.ID,
	}
}

// contextKey is the key for storing user info in context
type contextKey string

const userContextKey contextKey = "user"

// GetUserFromContext extracts the authenticated user from the context
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// SetUserInContext stores the authenticated user in the context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

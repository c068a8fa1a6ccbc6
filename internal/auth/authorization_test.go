package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContextRoundTrip(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	claims := &SessionClaims{Email: "a@x.com", Name: "A"}
	claims.Subject = "42"
	claims.ID = "jti"

	ctx := SetUserInContext(context.Background(), UserContextFromClaims(claims))
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", user.UserID)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "jti", user.TokenID)
}

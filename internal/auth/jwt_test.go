package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTValidatorRoundTrip(t *testing.T) {
	v := NewJWTValidator("s3cret")

	token, err := v.IssueToken(42, time.Minute)
	require.NoError(t, err)

	userID, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestJWTValidatorRejects(t *testing.T) {
	v := NewJWTValidator("s3cret")

	expired, err := v.IssueToken(42, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewJWTValidator("other").IssueToken(42, time.Minute)
	require.NoError(t, err)

	noUser, err := v.IssueToken(0, time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 42}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"missing user": noUser,
		"unsigned":     none,
		"garbage":      "not-a-jwt",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

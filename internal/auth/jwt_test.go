package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(secret, "ansuz-test")
	token, err := v.Issue(models.Account{UserID: "u1", Tier: models.TierUnmetered}, time.Hour)
	require.NoError(t, err)

	acct, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", acct.UserID)
	assert.Equal(t, models.TierUnmetered, acct.Tier)
}

func TestJWTVerifier_DefaultTierIsMetered(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(secret, "ansuz-test")
	token, err := v.Issue(models.Account{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	acct, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.TierMetered, acct.Tier)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(secret, "ansuz-test")

	expired, err := v.Issue(models.Account{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewJWTVerifier(secret, "someone-else").Issue(models.Account{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	otherSecret, err := NewJWTVerifier("ffffffffffffffffffffffffffffffff", "ansuz-test").Issue(models.Account{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	badTier, err := v.Issue(models.Account{UserID: "u1", Tier: "platinum"}, time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u1",
		Issuer:  "ansuz-test",
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "ansuz-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"issuer":       otherIssuer,
		"secret":       otherSecret,
		"tier":         badTier,
		"no expiry":    noExp,
		"none signing": noneAlg,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := v.Authenticate(context.Background(), token)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := Static{Account: models.Account{UserID: "dev", Tier: models.TierUnmetered}}
	acct, err := s.Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "dev", acct.UserID)
}

func TestAccountContext(t *testing.T) {
	t.Parallel()

	_, ok := AccountFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithAccount(context.Background(), models.Account{UserID: "u1", Tier: models.TierMetered})
	acct, ok := AccountFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", acct.UserID)
}

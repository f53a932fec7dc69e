// Package auth resolves the calling account from bearer tokens issued by
// the identity collaborator.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Authenticator turns a bearer token into an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Account, error)
}

// accessClaims extends standard JWT claims with the account tier.
type accessClaims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// JWTVerifier validates HS256 access tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
}

var _ Authenticator = (*JWTVerifier)(nil)

// NewJWTVerifier creates a verifier for tokens signed with secret by issuer.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Authenticate validates token and returns the subject and tier.
// A missing tier claim means metered.
func (v *JWTVerifier) Authenticate(_ context.Context, token string) (models.Account, error) {
	if token == "" {
		return models.Account{}, fmt.Errorf("%w: token is empty", apperr.ErrUnauthorized)
	}

	parsed, err := jwt.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return models.Account{}, fmt.Errorf("%w: invalid token claims", apperr.ErrUnauthorized)
	}

	tier := models.Tier(claims.Tier)
	if claims.Tier == "" {
		tier = models.TierMetered
	}
	if !tier.Valid() {
		return models.Account{}, fmt.Errorf("%w: unknown tier %q", apperr.ErrUnauthorized, claims.Tier)
	}
	return models.Account{UserID: claims.Subject, Tier: tier}, nil
}

// Issue signs a token for acct. Used by the token command and tests.
func (v *JWTVerifier) Issue(acct models.Account, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.UserID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Tier: string(acct.Tier),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Static authenticates every request as one fixed account. Used when
// authentication is disabled for local development.
type Static struct {
	Account models.Account
}

var _ Authenticator = Static{}

// Authenticate implements Authenticator.
func (s Static) Authenticate(context.Context, string) (models.Account, error) {
	return s.Account, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("expired token")
)

// accessClaims mirrors the wire shape of an access token: subject is the
// username, uid the account id, adm the elevation flag.
type accessClaims struct {
	AccountID string `json:"uid"`
	Admin     bool   `json:"adm"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies access tokens with a shared HMAC secret. It holds
// no mutable state; token validity is a pure function of the token bytes, the
// secret, and the current time.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(identity Identity) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		AccountID: identity.AccountID,
		Admin:     identity.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

// Verify decodes an access token, checks the signature and the expiry, and
// rebuilds the identity it carries. A token that fails either check is never
// partially trusted. Expiry has no leeway.
func (i *Issuer) Verify(tokenStr string) (Identity, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrTokenSignature
		default:
			return Identity{}, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return Identity{}, ErrTokenSignature
	}

	return Identity{
		Username:  claims.Subject,
		AccountID: claims.AccountID,
		Admin:     claims.Admin,
	}, nil
}

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"MiniMarket/internal/identity"
	"MiniMarket/internal/store"
)

const issuer = "minimarket"

var ErrInvalidToken = errors.New("invalid token")

type TokenMaker struct {
	secret []byte
	issuer string
}

func NewTokenMaker(secret string) *TokenMaker {
	return &TokenMaker{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Claims binds a token to the caller address in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

func (t *TokenMaker) New(caller store.Address, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(caller),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies tokenStr and returns the checksummed caller address it was
// issued for.
func (t *TokenMaker) Parse(tokenStr string) (store.Address, error) {
	var c Claims

	token, err := jwt.ParseWithClaims(tokenStr, &c, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || token == nil || !token.Valid {
		return "", ErrInvalidToken
	}

	caller, err := identity.Parse(c.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	return caller, nil
}

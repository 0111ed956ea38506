package httpapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// dispatcherClaim is the sole claim shape issued to control-plane callers:
// unlike the teacher's user/access/refresh tokens, the dispatch engine has
// one caller identity — a dispatcher — so there is no login/refresh flow to
// trim (tokens are minted out of band and handed to operators).
type dispatcherClaim struct {
	jwt.RegisteredClaims
	DispatcherID string `json:"dispatcher_id"`
}

var errInvalidToken = errors.New("invalid or expired dispatcher token")

type tokenValidator struct {
	secret string
}

func newTokenValidator(secret string) *tokenValidator {
	return &tokenValidator{secret: secret}
}

func (v *tokenValidator) validate(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &dispatcherClaim{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return []byte(v.secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", errInvalidToken
	}

	claims, ok := parsed.Claims.(*dispatcherClaim)
	if !ok || claims.DispatcherID == "" {
		return "", errInvalidToken
	}
	return claims.DispatcherID, nil
}

// issue mints a dispatcher token; used by tests, not exposed over HTTP (no
// /auth endpoints in this control plane) and not called by the CLI, which
// takes a ready-made token through its -token flag.
func issue(secret, dispatcherID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := dispatcherClaim{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		DispatcherID: dispatcherID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

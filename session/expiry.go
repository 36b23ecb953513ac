package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cerrors "github.com/jrsteele09/go-auth-console/internal/errors"
)

// AccessTokenExpiry reads the exp claim of a JWT access token without verifying its signature.
// The console cannot verify tokens; it only needs to know whether one is worth sending.
func AccessTokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", cerrors.ErrMalformedToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", cerrors.ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: no exp claim", cerrors.ErrMalformedToken)
	}
	return exp.Time, nil
}

package backendfake

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// accessClaims is what the fake backend puts in an access token.
type accessClaims struct {
	jwt.RegisteredClaims
	CompanyID   int64 `json:"company_id"`
	IsSuperuser bool  `json:"is_superuser"`
}

// storedRefresh is a live refresh token. One session has exactly one at a time.
type storedRefresh struct {
	UserID    int64
	SessionID int64
	Iat       time.Time
}

type hmacSigner struct {
	secret []byte
}

func (h *hmacSigner) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (h *hmacSigner) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

// mintAccess signs an access token for u that expires ttl after now (negative ttl gives an
// already expired token).
func (b *Backend) mintAccess(u *user, ttl time.Duration) (string, error) {
	now := b.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		CompanyID:   u.CompanyID,
		IsSuperuser: u.IsSuperuser,
	}
	return b.signer.sign(claims)
}

// parseAccess verifies a bearer token and returns the user id it was issued to.
func (b *Backend) parseAccess(raw string) (int64, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, b.signer.verificationKey,
		jwt.WithTimeFunc(b.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate random bytes")
	}
	return hex.EncodeToString(buf), nil
}

// issuePair mints a fresh pair for the session and retires its previous refresh token.
// Callers hold b.mu.
func (b *Backend) issuePair(u *user, sessionID int64) (tokenResponse, error) {
	access, err := b.mintAccess(u, b.accessTTL)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return tokenResponse{}, err
	}
	for token, rt := range b.refreshTokens {
		if rt.SessionID == sessionID {
			delete(b.refreshTokens, token)
		}
	}
	b.refreshTokens[refresh] = storedRefresh{UserID: u.ID, SessionID: sessionID, Iat: b.now()}
	return tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Package token mints and verifies the signed session tokens that stand in
// for server-side sessions. Tokens are self-contained: possession of a
// structurally valid, unexpired, correctly signed token is sufficient for
// authentication.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures collapse into exactly two classes. Only ErrExpired is
// recoverable by re-authentication; everything else is ErrInvalid and must
// force a logout on the client.
var (
	ErrExpired = errors.New("session token expired")
	ErrInvalid = errors.New("session token invalid")
)

// Claims represents the JWT claims carried by a session token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HS256 session tokens with a fixed TTL.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the lifetime applied to minted tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint creates a fresh session token for the given user.
func (s *Signer) Mint(userID int64) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify parses a session token and returns the subject user ID.
//
// Failure classification is load-bearing: ErrExpired is returned only when
// the token is well-formed and correctly signed but past its expiry. A token
// whose signature does not check out is ErrInvalid regardless of its claimed
// expiry, and any unexpected parse failure also maps to ErrInvalid (fail
// closed, never fail open).
func (s *Signer) Verify(tokenString string) (int64, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		// jwt/v5 joins signature and claim validation errors, so an expired
		// token with a broken signature reports both; expiry only wins when
		// the signature itself held up.
		if errors.Is(err, jwt.ErrTokenExpired) &&
			!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
			!errors.Is(err, jwt.ErrTokenMalformed) {
			return 0, ErrExpired
		}
		return 0, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return 0, ErrInvalid
	}
	return claims.UserID, nil
}

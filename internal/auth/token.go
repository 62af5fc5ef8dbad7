// ABOUTME: Session token issuers: opaque random tokens or HS256 JWTs
// ABOUTME: JWT tokens are also verified by the gate before the store lookup

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum JWT signing secret length in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenIssuer generates a new session token for a user.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// TokenVerifier checks a token's own integrity and returns its subject.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// RandomIssuer issues 32 random bytes, URL-safe base64 encoded.
type RandomIssuer struct{}

// Issue ignores userID; the token carries no information.
func (RandomIssuer) Issue(string) (string, error) {
	return generateBase64Token(32)
}

func generateBase64Token(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// JWTIssuer issues and verifies HS256 JWTs with sub, jti, iat and exp claims.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var (
	_ TokenIssuer   = RandomIssuer{}
	_ TokenIssuer   = (*JWTIssuer)(nil)
	_ TokenVerifier = (*JWTIssuer)(nil)
)

// NewJWTIssuer creates a JWT issuer. ttl is the session lifetime.
func NewJWTIssuer(secret []byte, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &JWTIssuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed token for userID. The jti claim makes every token
// unique even when issued in the same second.
func (j *JWTIssuer) Issue(userID string) (string, error) {
	now := j.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(j.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Verify validates the signature and expiry and extracts the "sub" claim.
func (j *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Package session signs the session cookie that carries a client's opaque
// session id.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/amoylab/castwall/internal/common/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAlgorithm = errors.New("invalid signing algorithm")
	ErrWeakSecretKey    = errors.New("secret key must be at least 32 characters")
	ErrEmptySession     = errors.New("session id cannot be empty")
)

const issuer = "castwall"

// Claims carries the session id in the subject
type Claims struct {
	jwt.RegisteredClaims
}

// Codec issues and validates session cookies
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. An empty secret is replaced by a random one,
// so cookies do not survive a restart.
func NewCodec(cfg config.SessionConfig) (*Codec, error) {
	secret := cfg.SecretKey
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
	}
	if len(secret) < 32 {
		return nil, ErrWeakSecretKey
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 31 * 24 * time.Hour
	}
	return &Codec{secret: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

// MaxAge returns the cookie lifetime
func (c *Codec) MaxAge() time.Duration { return c.maxAge }

// Issue signs sessionID
func (c *Codec) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySession
	}
	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse validates a cookie value and returns the session id inside it
func (c *Codec) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return c.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

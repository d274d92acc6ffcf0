package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	unsubscribeAudience = "unsubscribe"
	issuer              = "price-digest"
)

var ErrInvalidToken = errors.New("invalid unsubscribe token")

// UnsubscribeClaims identify the subscriber a one-click link belongs to
type UnsubscribeClaims struct {
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 unsubscribe tokens
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. A zero ttl issues tokens that never expire.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("unsubscribe secret must be at least 16 bytes")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign returns a token whose subject is the normalized email
func (s *Signer) Sign(email string) (string, error) {
	now := s.now()
	claims := UnsubscribeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strings.ToLower(strings.TrimSpace(email)),
			Audience: jwt.ClaimStrings{unsubscribeAudience},
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the email it was issued for
func (s *Signer) Parse(tokenString string) (string, error) {
	claims := &UnsubscribeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(unsubscribeAudience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

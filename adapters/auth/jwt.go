// Package auth issues and verifies the bearer tokens accepted by the auth
// middleware. Tokens are stateless HS256 JWTs, so any instance sharing the
// secret can verify them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/procgate/ports"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim of issued tokens.
const DefaultIssuer = "procgate"

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of a procgate token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService implements ports.TokenService. Safe for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	clock      ports.Clock
}

// NewTokenService creates a token service. An empty secret is replaced by
// a random one, which makes tokens valid only for this process. A zero
// expiration defaults to 24 hours.
func NewTokenService(secret string, expiration time.Duration, clock ports.Clock) *TokenService {
	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	} else {
		key = []byte(secret)
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &TokenService{
		secret:     key,
		issuer:     DefaultIssuer,
		expiration: expiration,
		clock:      clock,
	}
}

// Issue signs a token for p.
func (s *TokenService) Issue(p ports.Principal) (string, time.Time, error) {
	if p.Subject == "" {
		return "", time.Time{}, errors.New("principal has no subject")
	}
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, issuer and expiry of token.
func (s *TokenService) Verify(token string) (ports.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return ports.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return ports.Principal{}, ErrInvalidToken
	}
	return ports.Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// GenerateSecret returns a random hex secret suitable for signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

var _ ports.TokenService = (*TokenService)(nil)

// Package codec signs and verifies typed JWT tokens with one secret and algorithm
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/models"
)

const defaultSigningMethod = "HS256"

// Claims carried by every token
type Claims struct {
	jwt.RegisteredClaims
	Type models.TokenType `json:"type"`
}

type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm: HS256, HS384 or HS512
	// If not set than default is used
	Alg string
}

type Codec struct {
	key []byte
	alg jwt.SigningMethod
	now func() time.Time
}

type Option func(*Codec)

// Use custom clock for minting and verification
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Alg)
	}

	c := &Codec{
		key: []byte(cfg.SecretKey),
		alg: alg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Codec) Alg() string {
	return c.alg.Alg()
}

// Mint signed token for subject with type discriminator, valid for ttl
func (c *Codec) Mint(subject string, typ models.TokenType, ttl time.Duration) (models.IssuedToken, error) {
	if ttl <= 0 {
		return models.IssuedToken{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}

	signed, err := jwt.NewWithClaims(c.alg, claims).SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify signature and expiration and return claims as they were minted
//
// Errors:
//   - apperrors.ErrTokenExpired if now >= exp
//   - apperrors.ErrTokenSignatureInvalid (with ErrTokenInvalid) on signature or algorithm mismatch
//   - apperrors.ErrTokenMalformed (with ErrTokenInvalid) if token can't be parsed or misses required claims
func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, apperrors.ErrTokenSignatureInvalid)
	default:
		return nil, fmt.Errorf("%w: %w: %v", apperrors.ErrTokenInvalid, apperrors.ErrTokenMalformed, err)
	}

	if claims.Type == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w: type and subject are required", apperrors.ErrTokenInvalid, apperrors.ErrTokenMalformed)
	}

	return claims, nil
}

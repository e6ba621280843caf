package session

import (
	"errors"
	"fmt"
	"time"

	"account-server/shared/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens inside the claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is what the Manager puts into every token.
type Claims struct {
	PrincipalID uuid.UUID
	Type        TokenType
	ID          string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenCodec signs and verifies tokens of a single type.
// Verify returns models.ErrTokenExpired or models.ErrTokenInvalid on failure.
type TokenCodec interface {
	Sign(claims Claims, lifetime time.Duration) (string, error)
	Verify(token string) (*Claims, error)
}

type jwtClaims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// JWTCodec is a HS256 TokenCodec.
type JWTCodec struct {
	secret    []byte
	issuer    string
	tokenType TokenType
	now       func() time.Time
	parser    *jwt.Parser
}

var _ TokenCodec = (*JWTCodec)(nil)

// NewJWTCodec creates a codec for tokenType signed with secret.
func NewJWTCodec(secret, issuer string, tokenType TokenType, now func() time.Time) *JWTCodec {
	if now == nil {
		now = time.Now
	}
	return &JWTCodec{
		secret:    []byte(secret),
		issuer:    issuer,
		tokenType: tokenType,
		now:       now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}
}

// Sign encodes claims with an expiry of claims.IssuedAt + lifetime.
func (c *JWTCodec) Sign(claims Claims, lifetime time.Duration) (string, error) {
	if claims.Type != c.tokenType {
		return "", fmt.Errorf("codec for %s tokens cannot sign %s token", c.tokenType, claims.Type)
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = c.now()
	}

	jc := &jwtClaims{
		Type: claims.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   claims.PrincipalID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.IssuedAt.Add(lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", c.tokenType, err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, expiry and token type.
func (c *JWTCodec) Verify(tokenString string) (*Claims, error) {
	jc := &jwtClaims{}
	token, err := c.parser.ParseWithClaims(tokenString, jc, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if jc.Type != c.tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %q", models.ErrTokenInvalid, c.tokenType, jc.Type)
	}
	if jc.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", models.ErrTokenInvalid)
	}
	principalID, err := uuid.Parse(jc.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", models.ErrTokenInvalid)
	}

	claims := &Claims{
		PrincipalID: principalID,
		Type:        jc.Type,
		ID:          jc.ID,
		ExpiresAt:   jc.ExpiresAt.Time,
	}
	if jc.IssuedAt != nil {
		claims.IssuedAt = jc.IssuedAt.Time
	}
	return claims, nil
}

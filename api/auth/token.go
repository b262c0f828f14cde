// Package auth issues and verifies the short-lived tokens that authorize
// event stream subscriptions. A token is scoped to exactly one session so
// a client can never attach to another user's stream.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BaSui01/researchflow/types"
)

// Config holds token signing parameters.
type Config struct {
	// Secret is the HS256 signing key.
	Secret string `json:"secret" yaml:"secret"`

	// TTL bounds token validity. Defaults to 5 minutes.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// Issuer is stamped and verified on every token.
	Issuer string `json:"issuer" yaml:"issuer"`
}

// DefaultConfig returns the token defaults. Secret must be supplied.
func DefaultConfig() Config {
	return Config{
		TTL:    5 * time.Minute,
		Issuer: "researchflow",
	}
}

// Claims are the subscription token claims.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies subscription tokens.
type Issuer struct {
	cfg Config
}

// NewIssuer creates a token issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: signing secret must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "researchflow"
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue creates a token granting subscription access to sessionID.
func (i *Issuer) Issue(sessionID, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.cfg.TTL
}

// Verify checks the token and that it grants access to sessionID.
func (i *Issuer) Verify(tokenStr, sessionID string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) {
			return []byte(i.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.cfg.Issuer),
	)
	if err != nil {
		return nil, types.Terminal(types.ErrUnauthorized, "invalid or expired token").
			WithHTTPStatus(401).WithCause(err)
	}
	if !token.Valid {
		return nil, types.Terminal(types.ErrUnauthorized, "invalid token").WithHTTPStatus(401)
	}
	if claims.SessionID != sessionID {
		return nil, types.Terminal(types.ErrUnauthorized, "token not valid for this session").
			WithHTTPStatus(403)
	}
	return claims, nil
}

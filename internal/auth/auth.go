// Package auth issues and verifies the bearer tokens accepted by the API.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DisabledToken is returned by Login when authentication is turned off.
const DisabledToken = "disabled"

// AnonymousSubject is the identity attached to requests when authentication
// is turned off.
const AnonymousSubject = "anonymous"

var (
	// ErrInvalidCredentials is returned when a login does not match the
	// configured admin account.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims are the claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	Enabled    bool
	Secret     string
	Expiration time.Duration
	Username   string
	Password   string
}

// Issuer signs HS256 access tokens for the single admin account.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config) *Issuer {
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Hour
	}
	return &Issuer{cfg: cfg, now: time.Now}
}

// Enabled reports whether tokens are required.
func (i *Issuer) Enabled() bool {
	return i.cfg.Enabled
}

// Issue signs a token for sub.
func (i *Issuer) Issue(sub string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.Expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Login checks the admin credentials and returns an access token.
func (i *Issuer) Login(username, password string) (string, error) {
	if !i.cfg.Enabled {
		return DisabledToken, nil
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(i.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(i.cfg.Password)) == 1
	if !userOK || !passOK || i.cfg.Password == "" {
		return "", ErrInvalidCredentials
	}
	return i.Issue(username)
}

// Verify parses a token signed with secret and returns its claims.
func Verify(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

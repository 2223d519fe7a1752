// Package auth implements the console's session tokens: a single shared
// operator credential exchanged for a short-lived HS256 JWT.
//
// The console fronts one daemon on one machine, so there is no user database
// and no role model; possession of the console password is the whole
// authorization story. HMAC signing keeps the deployment to a single secret
// with no key files to mount.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// sessionDuration is how long a login stays valid. Long enough to cover a
	// working session; an expired token just redirects to the login form.
	sessionDuration = 12 * time.Hour

	// generatedSecretBytes is the size of an auto-generated signing secret.
	generatedSecretBytes = 32
)

// Claims holds the custom JWT claims embedded in every session token.
// Standard claims (exp, iat, iss) are included via jwt.RegisteredClaims.
type Claims struct {
	jwt.RegisteredClaims

	// Subject names the authenticated principal. The console has exactly one
	// ("operator"); the claim exists so multi-user support stays a schema
	// addition rather than a token rework.
	Operator string `json:"op"`
}

// Manager handles HS256 signing and verification of session tokens, plus the
// password check at login.
//
// The zero value is not usable — create instances with NewManager or
// NewManagerGenerated.
type Manager struct {
	secret   []byte
	password string
	issuer   string
}

// NewManager creates a Manager with an explicit signing secret, so sessions
// survive console restarts. password is the operator credential checked at
// login.
func NewManager(secret []byte, password, issuer string) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	if password == "" {
		return nil, errors.New("auth: operator password must not be empty")
	}
	return &Manager{secret: secret, password: password, issuer: issuer}, nil
}

// NewManagerGenerated creates a Manager with a freshly generated random
// secret. Existing sessions are invalidated on restart, which is acceptable
// for development and single-instance deployments.
func NewManagerGenerated(password, issuer string) (*Manager, error) {
	secret := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("auth: generating signing secret: %w", err)
	}
	return NewManager(secret, password, issuer)
}

// Login checks the operator password and issues a session token.
// A wrong password returns ErrBadCredentials.
func (m *Manager) Login(password string) (string, error) {
	// Constant-time compare; the password is the only credential there is.
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) != 1 {
		return "", ErrBadCredentials
	}
	return m.generateToken("operator")
}

func (m *Manager) generateToken(operator string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionDuration)),
			ID:        uuid.NewString(),
		},
		Operator: operator,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a session token string.
//
// Callers should use errors.Is(err, auth.ErrTokenExpired) to distinguish
// expired sessions from tampered or malformed tokens.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			// Reject tokens signed with anything other than HMAC, closing the
			// alg-substitution hole.
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// GenerateSecret returns a hex-encoded random secret suitable for the
// KEEPDECK_SESSION_SECRET setting. Exposed for the keygen CLI command.
func GenerateSecret() (string, error) {
	secret := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("auth: generating secret: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

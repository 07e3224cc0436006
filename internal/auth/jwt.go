// Package auth contains the credential primitives the backend builds on:
// signed access tokens, Google sign-in and magic-link codes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "list-flix"

// ErrTokenExpired is returned by Validate for well-formed tokens past their
// expiry.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and validates HS256 access tokens.
//
// A token names both the user (sub) and the server-side session row (sid).
// Validate only checks the signature and expiry; whether the session was
// revoked is the backend's job.
type TokenService struct {
	secret []byte
}

// NewTokenService rejects secrets shorter than 16 bytes.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Claims is what a valid token carries.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Generate signs a token for userID bound to sessionID, valid for ttl.
func (s *TokenService) Generate(userID, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns its claims.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" || c.SessionID == "" {
		return nil, errors.New("auth: token has no subject or session")
	}

	return &Claims{
		UserID:    c.Subject,
		SessionID: c.SessionID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

const deviceAudience = "device"

// SignDevice returns a token naming deviceID. It does not expire; a browser
// keeps its device for as long as it keeps the cookie.
func (s *TokenService) SignDevice(deviceID string) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:  deviceID,
		Audience: jwt.ClaimStrings{deviceAudience},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Issuer:   issuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing device: %w", err)
	}
	return signed, nil
}

// VerifyDevice returns the device id of a token made by SignDevice. Access
// tokens are rejected.
func (s *TokenService) VerifyDevice(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(deviceAudience),
	)
	if err != nil {
		return "", fmt.Errorf("auth: invalid device token: %w", err)
	}
	if c.Subject == "" {
		return "", errors.New("auth: device token has no subject")
	}
	return c.Subject, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret   = errors.New("device secret not configured")
	ErrBadSubject = errors.New("token subject missing")
)

const defaultTTL = 24 * time.Hour

// Credentials is the username/password pair presented to the broker.
type Credentials struct {
	Username string
	Password string
}

// BrokerCredentials builds the broker login for a device: username is the
// device ID, password a short-lived HS256 token signed with the device
// secret. The backend holds the same secret per device and verifies on
// CONNECT.
func BrokerCredentials(deviceID string, secret []byte, ttl time.Duration) (Credentials, error) {
	if len(secret) == 0 {
		return Credentials{}, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign broker token: %w", err)
	}
	return Credentials{Username: deviceID, Password: signed}, nil
}

// VerifyToken checks signature and expiry and returns the device ID the token
// was issued for.
func VerifyToken(raw string, secret []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrBadSubject
	}
	return subject, nil
}

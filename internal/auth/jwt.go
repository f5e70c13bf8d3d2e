package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the canteen issues tokens for.
const RoleAdmin = "admin"

// ErrBadPassword is returned by Login for a wrong admin password.
var ErrBadPassword = errors.New("invalid credentials")

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs admin bearer tokens.
type Issuer struct {
	Password string
	Issuer   string
	Key      string
	TTL      time.Duration
}

// Enabled reports whether admin routes require a token.
func (i Issuer) Enabled() bool {
	return i.Password != ""
}

// Login checks the admin password and returns a signed token with its expiry.
func (i Issuer) Login(password string) (string, time.Time, error) {
	if !i.Enabled() || subtle.ConstantTimeCompare([]byte(password), []byte(i.Password)) != 1 {
		return "", time.Time{}, ErrBadPassword
	}
	return Issue(RoleAdmin, RoleAdmin, i.Issuer, i.Key, i.TTL)
}

// Issue issues a signed access token.
func Issue(subject, role, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

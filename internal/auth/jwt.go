// Package auth issues and verifies the bearer tokens carried by staff
// requests to the admin endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
)

const issuer = "partnergate"

// Claims identifies the staff member acting on an application.
type Claims struct {
	jwt.RegisteredClaims
	StaffID string `json:"staff_id"`
	Email   string `json:"email,omitempty"`
}

// Staff is the verified identity attached to a request context.
type Staff struct {
	ID    string
	Email string
}

// Issuer signs and parses HS256 staff tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// GenerateToken returns a signed token valid for the issuer's TTL.
func (i *Issuer) GenerateToken(staffID, email string) (string, error) {
	if staffID == "" {
		return "", fmt.Errorf("staff id: %w", common.ErrValidation)
	}
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		StaffID: staffID,
		Email:   email,
	})
	return token.SignedString(i.secret)
}

// Verify parses a token and returns the staff identity. Every failure wraps
// common.ErrUnauthorized.
func (i *Issuer) Verify(tokenString string) (Staff, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Staff{}, fmt.Errorf("token expired: %w", common.ErrUnauthorized)
		}
		return Staff{}, fmt.Errorf("parse token: %w", common.ErrUnauthorized)
	}
	if !token.Valid || claims.StaffID == "" {
		return Staff{}, common.ErrUnauthorized
	}
	return Staff{ID: claims.StaffID, Email: claims.Email}, nil
}

type staffKey struct{}

// WithStaff stores the verified staff identity on ctx.
func WithStaff(ctx context.Context, s Staff) context.Context {
	return context.WithValue(ctx, staffKey{}, s)
}

// StaffFrom returns the identity stored by WithStaff.
func StaffFrom(ctx context.Context) (Staff, bool) {
	s, ok := ctx.Value(staffKey{}).(Staff)
	return s, ok
}

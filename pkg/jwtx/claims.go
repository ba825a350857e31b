package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTL constants. These mirror the issuance policy of the
// identity service but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 24 * time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 10 * 24 * time.Hour
)

// TokenClass discriminates access tokens from refresh tokens. Every token
// carries exactly one class in its "tkc" claim and verification checks it,
// so an access token can never be presented where a refresh token is
// expected or vice versa.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// Claims is the signed payload for both token classes. Class-specific fields
// are optional in JSON and validated against the class on decode:
//
//   - Roles is ACCESS-only. It's a snapshot taken at mint time, not re-read
//     from the role directory per request; role changes take effect on the
//     next refresh rotation.
//   - PairedAccessID is REFRESH-only. It names the jti of the access token
//     minted in the same issuance call so logout can revoke both halves.
type Claims struct {
	jwt.RegisteredClaims

	// Class is the token class discriminant ("access" or "refresh").
	Class TokenClass `json:"tkc"`

	// Roles the subject held at mint time (access tokens only).
	Roles []string `json:"roles,omitempty"`

	// PairedAccessID is the jti of the sibling access token (refresh only).
	PairedAccessID string `json:"pat,omitempty"`
}

// NewAccessClaims builds access-token claims for a subject. The jti is a
// fresh 128-bit random identifier, never reused across tokens.
func NewAccessClaims(
	subject string,
	roles []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewTokenID(),
		},
		Class: ClassAccess,
		Roles: roles,
	}
}

// NewRefreshClaims builds refresh-token claims bound to the access token
// minted alongside it. No roles are embedded; they are re-derived from the
// role directory when the refresh token is rotated.
func NewRefreshClaims(
	subject string,
	pairedAccessID string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewTokenID(),
		},
		Class:          ClassRefresh,
		PairedAccessID: pairedAccessID,
	}
}

// NewTokenID returns a fresh random identifier for the "jti" claim.
// UUIDv4 carries the 128 bits of entropy the revocation store keys on.
func NewTokenID() string {
	return uuid.NewString()
}

// ValidateClass checks the class discriminant and the class-specific field
// shape. A refresh token without its paired access id is structurally
// invalid, as is any token whose discriminant doesn't match what the caller
// expected.
func (c *Claims) ValidateClass(want TokenClass) error {
	if c.Class != want {
		return ErrWrongClass
	}
	if c.Class == ClassRefresh && c.PairedAccessID == "" {
		return ErrInvalidClaim
	}
	return nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiryAt checks exp/nbf against the given instant. The expiry
// boundary is inclusive: a token with exp == now is already expired.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiry is ValidateExpiryAt against the wall clock.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryAt(time.Now().UTC())
}

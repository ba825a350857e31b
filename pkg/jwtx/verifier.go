package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrWrongClass   = errors.New("jwtx: wrong token class")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// classifyParseError maps golang-jwt parse failures onto our sentinel
// taxonomy. Callers collapse all of these into a uniform rejection at the
// boundary; the distinctions exist for logs only.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// ExtractClaims decodes a token's payload WITHOUT verifying the signature or
// expiry. It exists for pure extraction (e.g. reading the subject id after an
// authorization gate has already verified the token) and must never be used
// as a substitute for Verify.
func ExtractClaims(tokenStr string) (Claims, error) {
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// RS256Adapter a Verifier wrapper for RS256.
type RS256Adapter struct{ *RS256Verifier }

func (a RS256Adapter) Verify(token string) (Claims, error) {
	c, err := a.RS256Verifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonRS256 returns a Verifier using the RS256 implementation wrapped
// in the common interface.
func NewCommonRS256(keys *KeySet, issuer string, now func() time.Time) Verifier {
	return RS256Adapter{NewVerifierRS256(keys, issuer, now)}
}

// EdDSAAdapter a Verifier wrapper for EdDSA.
type EdDSAAdapter struct{ *EdDSAVerifier }

func (a EdDSAAdapter) Verify(token string) (Claims, error) {
	c, err := a.EdDSAVerifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonEdDSA returns a Verifier using the EdDSA implementation wrapped
// in the common interface.
func NewCommonEdDSA(keys *KeySet, issuer string, now func() time.Time) Verifier {
	return EdDSAAdapter{NewVerifierEdDSA(keys, issuer, now)}
}

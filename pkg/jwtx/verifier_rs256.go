package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates JWTs signed using RS256.
type RS256Verifier struct {
	keys   *KeySet
	issuer string
	now    func() time.Time
}

// NewVerifierRS256 creates a verifier using a KeySet of RSA public keys.
// The now func is the clock used to judge expiry; pass nil for the wall
// clock (tests inject a fixed clock here).
func NewVerifierRS256(keys *KeySet, issuer string, now func() time.Time) *RS256Verifier {
	if now == nil {
		now = time.Now
	}
	return &RS256Verifier{keys: keys, issuer: issuer, now: now}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *RS256Verifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
		}

		// Try to find this key in our set
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}

		// Make sure it's actually an RSA key (it should be, watch it not be)
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid RSA key type")
		}
		return rsaPub, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	// Now check what the parser doesn't: issuer and the inclusive expiry
	// boundary (the parser treats exp == now as expired too, but this keeps
	// the rule explicit and under our injected clock).
	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(v.now().UTC()); err != nil {
		return nil, err
	}

	return claims, nil
}

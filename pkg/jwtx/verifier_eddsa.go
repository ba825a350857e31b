package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSAVerifier validates JWTs signed using EdDSA (Ed25519).
type EdDSAVerifier struct {
	keys   *KeySet
	issuer string
	now    func() time.Time
}

// NewVerifierEdDSA creates a verifier using a KeySet of Ed25519 public keys.
// Pass nil for now to use the wall clock.
func NewVerifierEdDSA(keys *KeySet, issuer string, now func() time.Time) *EdDSAVerifier {
	if now == nil {
		now = time.Now
	}
	return &EdDSAVerifier{keys: keys, issuer: issuer, now: now}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *EdDSAVerifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
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

		// Make sure it's actually an Ed25519 key
		ed25519Pub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid Ed25519 key type")
		}
		return ed25519Pub, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(v.now().UTC()); err != nil {
		return nil, err
	}

	return claims, nil
}
